package graph

import (
	"sync"

	"github.com/chazu/filament/pkg/data"
	"github.com/tidwall/btree"
)

// Node is a graph vertex. Nodes are never removed; pruning clears Valid so
// indices stay stable.
type Node struct {
	Valid            bool
	NodeIndex        int
	PointIndex       int // index into the vertex dataset
	NumExportedEdges int
	Edges            []int // incident edge indices, insertion ordered, no duplicates
}

// AddEdge records an incident edge once.
func (n *Node) AddEdge(edge int) {
	for _, e := range n.Edges {
		if e == edge {
			return
		}
	}
	n.Edges = append(n.Edges, edge)
}

// RemoveEdge drops an incident edge, keeping the order of the rest.
func (n *Node) RemoveEdge(edge int) {
	for i, e := range n.Edges {
		if e == edge {
			n.Edges = append(n.Edges[:i], n.Edges[i+1:]...)
			return
		}
	}
}

// IndexedEdge is a graph edge between Start and End. IOIndex and PointIndex
// point at the source point the edge was created from, or -1.
type IndexedEdge struct {
	EdgeIndex  int
	Start      int
	End        int
	Valid      bool
	IOIndex    int
	PointIndex int
}

// Key returns the unordered pair key of the edge endpoints.
func (e IndexedEdge) Key() uint64 {
	return data.H64U(uint32(e.Start), uint32(e.End))
}

// Other returns the endpoint opposite to node.
func (e IndexedEdge) Other(node int) int {
	if e.Start == node {
		return e.End
	}
	return e.Start
}

// Contains reports whether node is an endpoint.
func (e IndexedEdge) Contains(node int) bool {
	return e.Start == node || e.End == node
}

// SharesEndpoint reports whether e and o have a node in common.
func (e IndexedEdge) SharesEndpoint(o IndexedEdge) bool {
	return e.Contains(o.Start) || e.Contains(o.End)
}

// Graph is the canonical node and edge set. All mutation goes through its
// read/write lock; the Unsafe variants expect the caller to hold it.
type Graph struct {
	mu sync.RWMutex

	Nodes []Node
	Edges []IndexedEdge

	// uniqueEdges maps the pair key of every valid edge to its index.
	uniqueEdges map[uint64]int

	nodeMetadata btree.Map[int, *NodeMetadata]
	edgeMetadata btree.Map[int, *EdgeMetadata]

	SubGraphs []*SubGraph
}

// NewGraph creates a graph with numNodes valid, unconnected nodes. Node i
// maps to point i of the vertex dataset.
func NewGraph(numNodes, numEdgesReserve int) *Graph {
	g := &Graph{
		Nodes:       make([]Node, numNodes),
		Edges:       make([]IndexedEdge, 0, numEdgesReserve),
		uniqueEdges: make(map[uint64]int, numEdgesReserve),
	}
	for i := range g.Nodes {
		g.Nodes[i] = Node{Valid: true, NodeIndex: i, PointIndex: i}
	}
	return g
}

// View runs fn under the read lock.
func (g *Graph) View(fn func(nodes []Node, edges []IndexedEdge)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.Nodes, g.Edges)
}

// Update runs fn under the write lock.
func (g *Graph) Update(fn func(g *Graph)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

// NumNodes returns the node count, valid or not.
func (g *Graph) NumNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.Nodes)
}

// NumEdges returns the edge count, valid or not.
func (g *Graph) NumEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.Edges)
}

// NumValidEdges counts valid edges.
func (g *Graph) NumValidEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.uniqueEdges)
}

// InsertEdge adds an edge between a and b unless one already exists or the
// edge would be degenerate. It reports the resulting edge index and whether
// a new edge was created.
func (g *Graph) InsertEdge(a, b, ioIndex, pointIndex int) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.InsertEdgeUnsafe(a, b, ioIndex, pointIndex)
}

// InsertEdgeUnsafe is InsertEdge without locking.
func (g *Graph) InsertEdgeUnsafe(a, b, ioIndex, pointIndex int) (int, bool) {
	if a == b || a < 0 || b < 0 || a >= len(g.Nodes) || b >= len(g.Nodes) {
		return -1, false
	}
	key := data.H64U(uint32(a), uint32(b))
	if existing, ok := g.uniqueEdges[key]; ok {
		return existing, false
	}
	idx := len(g.Edges)
	g.Edges = append(g.Edges, IndexedEdge{
		EdgeIndex:  idx,
		Start:      a,
		End:        b,
		Valid:      true,
		IOIndex:    ioIndex,
		PointIndex: pointIndex,
	})
	g.uniqueEdges[key] = idx
	g.Nodes[a].AddEdge(idx)
	g.Nodes[b].AddEdge(idx)
	return idx, true
}

// InsertEdges adds a batch of edges, keeping their provenance. It returns
// the number of edges actually created.
func (g *Graph) InsertEdges(edges []IndexedEdge) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, e := range edges {
		if _, ok := g.InsertEdgeUnsafe(e.Start, e.End, e.IOIndex, e.PointIndex); ok {
			n++
		}
	}
	return n
}

// FindEdge returns the index of the valid edge between a and b.
func (g *Graph) FindEdge(a, b int) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.uniqueEdges[data.H64U(uint32(a), uint32(b))]
	return idx, ok
}

// AddNodes appends n valid nodes and returns the index of the first one.
// New node i maps to vertex point i unless the caller changes PointIndex.
func (g *Graph) AddNodes(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	start, _ := g.AddNodesUnsafe(n)
	return start
}

// AddNodesUnsafe appends n nodes without locking and returns the first
// index together with a view over the new slots. The view is only valid
// until the node array grows again.
func (g *Graph) AddNodesUnsafe(n int) (int, []Node) {
	start := len(g.Nodes)
	for i := 0; i < n; i++ {
		idx := start + i
		g.Nodes = append(g.Nodes, Node{Valid: true, NodeIndex: idx, PointIndex: idx})
	}
	return start, g.Nodes[start:]
}

// InvalidateEdgeUnsafe marks an edge invalid, detaches it from its nodes
// and frees its pair key.
func (g *Graph) InvalidateEdgeUnsafe(idx int) {
	e := &g.Edges[idx]
	if !e.Valid {
		return
	}
	e.Valid = false
	if cur, ok := g.uniqueEdges[e.Key()]; ok && cur == idx {
		delete(g.uniqueEdges, e.Key())
	}
	g.Nodes[e.Start].RemoveEdge(idx)
	g.Nodes[e.End].RemoveEdge(idx)
}

// SplitEdgeUnsafe replaces edge idx with a chain running through the given
// nodes in order. The original edge is invalidated; created edges inherit
// its provenance and get idx as parent. It returns the created edge
// indices.
func (g *Graph) SplitEdgeUnsafe(idx int, through []int, kind IntersectionType) []int {
	parent := g.Edges[idx]
	if !parent.Valid || len(through) == 0 {
		return nil
	}
	g.InvalidateEdgeUnsafe(idx)

	chain := make([]int, 0, len(through)+2)
	chain = append(chain, parent.Start)
	chain = append(chain, through...)
	chain = append(chain, parent.End)

	var created []int
	for i := 1; i < len(chain); i++ {
		e, ok := g.InsertEdgeUnsafe(chain[i-1], chain[i], parent.IOIndex, parent.PointIndex)
		if !ok {
			continue
		}
		md := g.GetOrCreateEdgeMetadataUnsafe(e, idx)
		md.Type = kind
		created = append(created, e)
	}
	return created
}

// GetConnectedNodes returns the nodes reachable from `from` within depth
// hops over valid edges, in breadth-first order, excluding `from`.
func (g *Graph) GetConnectedNodes(from, depth int) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if from < 0 || from >= len(g.Nodes) || depth <= 0 {
		return nil
	}

	visited := map[int]bool{from: true}
	frontier := []int{from}
	var out []int
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []int
		for _, n := range frontier {
			for _, ei := range g.Nodes[n].Edges {
				e := g.Edges[ei]
				if !e.Valid {
					continue
				}
				other := e.Other(n)
				if visited[other] || !g.Nodes[other].Valid {
					continue
				}
				visited[other] = true
				out = append(out, other)
				next = append(next, other)
			}
		}
		frontier = next
	}
	return out
}
