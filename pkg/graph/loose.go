package graph

import (
	"sync"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/geom"
	"github.com/chazu/filament/pkg/spatial"
	"gonum.org/v1/gonum/stat"
)

// LooseNode is a fused node of the loose graph. Position is the first point
// that created it and is what fuse queries compare against; Center is the
// mean of every compounded point once UpdateCenters has run.
type LooseNode struct {
	Index    int
	Position geom.Vec
	Center   geom.Vec
}

// LooseGraph fuses raw points into nodes during ingestion and records the
// deduplicated edges between them. Each node and edge keeps a compound of
// the original points merged into it.
type LooseGraph struct {
	mu sync.RWMutex

	Settings FuseSettings
	Nodes    []*LooseNode

	// PointsCompounds and EdgesCompounds are indexed like Nodes and
	// UniqueEdges respectively.
	PointsCompounds *data.IdxCompoundList
	EdgesCompounds  *data.IdxCompoundList

	index *spatial.Index[*LooseNode]
	edges map[uint64]int
	list  []IndexedEdge
}

// NewLooseGraph creates an empty loose graph.
func NewLooseGraph(settings FuseSettings) *LooseGraph {
	return &LooseGraph{
		Settings:        settings,
		PointsCompounds: data.NewIdxCompoundList(),
		EdgesCompounds:  data.NewIdxCompoundList(),
		index:           spatial.New(func(n *LooseNode) geom.Box { return geom.PointBox(n.Position) }),
		edges:           make(map[uint64]int),
	}
}

// NumNodes returns the number of fused nodes.
func (lg *LooseGraph) NumNodes() int {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return len(lg.Nodes)
}

// NumEdges returns the number of unique edges.
func (lg *LooseGraph) NumEdges() int {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return len(lg.list)
}

// GetOrCreateNode returns the node fusing with position, creating it when
// none exists, and records (ioIndex, pointIndex) in its compound.
func (lg *LooseGraph) GetOrCreateNode(position geom.Vec, ioIndex, pointIndex int) *LooseNode {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	return lg.GetOrCreateNodeUnsafe(position, ioIndex, pointIndex)
}

// GetOrCreateNodeUnsafe is GetOrCreateNode for callers holding the lock.
func (lg *LooseGraph) GetOrCreateNodeUnsafe(position geom.Vec, ioIndex, pointIndex int) *LooseNode {
	node := lg.findNearestUnsafe(position)
	if node == nil {
		node = &LooseNode{Index: len(lg.Nodes), Position: position, Center: position}
		lg.Nodes = append(lg.Nodes, node)
		lg.PointsCompounds.New()
		lg.index.InsertUnsafe(node)
	}
	lg.PointsCompounds.Add(node.Index, ioIndex, pointIndex)
	return node
}

func (lg *LooseGraph) findNearestUnsafe(position geom.Vec) *LooseNode {
	var best *LooseNode
	bestDist := 0.0
	box := geom.ExpandBy(geom.PointBox(position), lg.Settings.Extents())
	lg.index.QueryUnsafe(box, func(n *LooseNode) bool {
		if !lg.Settings.IsWithinTolerance(n.Position, position) {
			return true
		}
		d := geom.DistSquared(n.Position, position)
		if best == nil || d < bestDist || (d == bestDist && n.Index < best.Index) {
			best, bestDist = n, d
		}
		return true
	})
	return best
}

// CreateBridge fuses both endpoints and records an edge between them. The
// edge compound gets the source point of the bridge start. It returns false
// when both endpoints fuse into the same node.
func (lg *LooseGraph) CreateBridge(from geom.Vec, fromIO, fromIndex int, to geom.Vec, toIO, toIndex int) bool {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	return lg.CreateBridgeUnsafe(from, fromIO, fromIndex, to, toIO, toIndex)
}

// CreateBridgeUnsafe is CreateBridge for callers holding the lock.
func (lg *LooseGraph) CreateBridgeUnsafe(from geom.Vec, fromIO, fromIndex int, to geom.Vec, toIO, toIndex int) bool {
	a := lg.GetOrCreateNodeUnsafe(from, fromIO, fromIndex)
	b := lg.GetOrCreateNodeUnsafe(to, toIO, toIndex)
	if a.Index == b.Index {
		return false
	}

	key := data.H64U(uint32(a.Index), uint32(b.Index))
	idx, ok := lg.edges[key]
	if !ok {
		idx = len(lg.list)
		lg.edges[key] = idx
		lg.list = append(lg.list, IndexedEdge{
			EdgeIndex:  idx,
			Start:      a.Index,
			End:        b.Index,
			Valid:      true,
			IOIndex:    fromIO,
			PointIndex: fromIndex,
		})
		lg.EdgesCompounds.New()
	}
	lg.EdgesCompounds.Add(idx, fromIO, fromIndex)
	return true
}

// InsertPath bridges each consecutive pair of points of io, and the last
// point back to the first when closed. A dataset with fewer than two points
// contributes nothing and returns false.
func (lg *LooseGraph) InsertPath(io *data.PointIO, closed bool) bool {
	n := io.NumIn()
	if n < 2 {
		return false
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()
	for i := 1; i < n; i++ {
		lg.CreateBridgeUnsafe(io.In[i-1].Position, io.IOIndex, i-1, io.In[i].Position, io.IOIndex, i)
	}
	if closed && n > 2 {
		lg.CreateBridgeUnsafe(io.In[n-1].Position, io.IOIndex, n-1, io.In[0].Position, io.IOIndex, 0)
	}
	return true
}

// InsertEdges ingests an explicit edge list over the points of io. Each
// edge is an (a, b) pair of point indices; out of range pairs are skipped.
// It returns the number of edges bridged.
func (lg *LooseGraph) InsertEdges(io *data.PointIO, edges [][2]int) int {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	n := 0
	for _, e := range edges {
		a, b := e[0], e[1]
		if a < 0 || b < 0 || a >= io.NumIn() || b >= io.NumIn() {
			continue
		}
		if lg.CreateBridgeUnsafe(io.In[a].Position, io.IOIndex, a, io.In[b].Position, io.IOIndex, b) {
			n++
		}
	}
	return n
}

// GetUniqueEdges returns the deduplicated edges in creation order, so edge
// i matches EdgesCompounds entry i.
func (lg *LooseGraph) GetUniqueEdges() []IndexedEdge {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return append([]IndexedEdge(nil), lg.list...)
}

// UpdateCenters recomputes the center of every node from its compounded
// source points.
func (lg *LooseGraph) UpdateCenters(sources *data.Collection) {
	for i := range lg.Nodes {
		lg.UpdateCenter(i, sources)
	}
}

// UpdateCenter recomputes the center of node i as the mean position of its
// compounded source points. Safe to call for distinct nodes concurrently.
func (lg *LooseGraph) UpdateCenter(i int, sources *data.Collection) {
	lg.mu.RLock()
	node := lg.Nodes[i]
	lg.mu.RUnlock()

	c := lg.PointsCompounds.At(i)
	if c == nil || sources == nil {
		return
	}
	xs := make([]float64, 0, c.Len())
	ys := make([]float64, 0, c.Len())
	zs := make([]float64, 0, c.Len())
	c.Pairs(func(ioIndex, pointIndex int) bool {
		p, ok := sources.Source(ioIndex, pointIndex)
		if !ok {
			return true
		}
		xs = append(xs, p.Position.X)
		ys = append(ys, p.Position.Y)
		zs = append(zs, p.Position.Z)
		return true
	})
	if len(xs) == 0 {
		return
	}
	node.Center = geom.Vec{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil), Z: stat.Mean(zs, nil)}
}

// Consolidate returns the vertex points of the loose graph, one per node at
// its center, in node order.
func (lg *LooseGraph) Consolidate() []data.Point {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	out := make([]data.Point, len(lg.Nodes))
	for i, n := range lg.Nodes {
		out[i] = data.Point{Position: n.Center}
	}
	return out
}

// WriteMetadata copies compound information of every node into the
// canonical graph's node metadata. Node indices must match.
func (lg *LooseGraph) WriteMetadata(g *Graph) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	g.Update(func(g *Graph) {
		for i := range lg.Nodes {
			if i >= len(g.Nodes) {
				return
			}
			size := lg.PointsCompounds.Size(i)
			md := g.GetOrCreateNodeMetadataUnsafe(i)
			md.CompoundSize = size
			md.Compounded = size > 1
		}
	})
}
