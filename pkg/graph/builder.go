package graph

import (
	"context"
	"log/slog"
	"math"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/geom"
	"github.com/chazu/filament/pkg/mt"
	"github.com/google/uuid"
)

// BuilderSettings control how clusters are filtered and written.
type BuilderSettings struct {
	PruneIsolatedPoints bool    `yaml:"prune_isolated_points"`
	WriteEdgePosition   bool    `yaml:"write_edge_position"`
	EdgePosition        float64 `yaml:"edge_position" validate:"gte=0,lte=1"`
	RemoveSmallClusters bool    `yaml:"remove_small_clusters"`
	MinClusterSize      int     `yaml:"min_cluster_size" validate:"gte=0"`
	RemoveBigClusters   bool    `yaml:"remove_big_clusters"`
	MaxClusterSize      int     `yaml:"max_cluster_size" validate:"gte=0"`
	RefreshEdgeSeed     bool    `yaml:"refresh_edge_seed"`
}

// DefaultBuilderSettings returns the default cluster settings.
func DefaultBuilderSettings() BuilderSettings {
	return BuilderSettings{
		PruneIsolatedPoints: true,
		WriteEdgePosition:   true,
		EdgePosition:        0.5,
		MinClusterSize:      3,
		MaxClusterSize:      500,
	}
}

// MinSize is the smallest accepted cluster node count.
func (s BuilderSettings) MinSize() int {
	if s.RemoveSmallClusters {
		return s.MinClusterSize
	}
	return 0
}

// MaxSize is the largest accepted cluster node count.
func (s BuilderSettings) MaxSize() int {
	if s.RemoveBigClusters {
		return s.MaxClusterSize
	}
	return math.MaxInt
}

// MetadataSettings select the optional attributes written on outputs.
type MetadataSettings struct {
	WriteCompounded           bool   `yaml:"write_compounded"`
	CompoundedAttributeName   string `yaml:"compounded_attribute_name"`
	WriteCompoundSize         bool   `yaml:"write_compound_size"`
	CompoundSizeAttributeName string `yaml:"compound_size_attribute_name"`
	WriteIntersector          bool   `yaml:"write_intersector"`
	IntersectorAttributeName  string `yaml:"intersector_attribute_name"`
	WriteCrossing             bool   `yaml:"write_crossing"`
	CrossingAttributeName     string `yaml:"crossing_attribute_name"`
	WriteFlags                bool   `yaml:"write_flags"`
	FlagA                     string `yaml:"flag_a"`
	FlagB                     string `yaml:"flag_b"`
}

// DefaultMetadataSettings names every attribute but writes none.
func DefaultMetadataSettings() MetadataSettings {
	return MetadataSettings{
		CompoundedAttributeName:   "Compounded",
		CompoundSizeAttributeName: "CompoundSize",
		IntersectorAttributeName:  "Intersector",
		CrossingAttributeName:     "Crossing",
		FlagA:                     "FlagA",
		FlagB:                     "FlagB",
	}
}

// Output is the result of a successful Write.
type Output struct {
	PairID   string
	Vertices *data.PointIO
	Clusters *data.Collection
}

// Builder owns the canonical graph built over a vertex dataset and
// compiles it into one edge dataset per cluster.
type Builder struct {
	PairID   string
	Settings BuilderSettings
	Metadata MetadataSettings

	// PointIO holds one input point per node; compilation fills its output
	// with the surviving vertices.
	PointIO *data.PointIO
	// Sources are the datasets edges were created from. Edge points copy
	// their source point when it can be resolved.
	Sources *data.Collection

	Graph                *Graph
	EdgesIO              *data.Collection
	CompiledSuccessfully bool

	logger  *slog.Logger
	vtxKeys []int64
}

// NewBuilder creates a builder whose graph has one node per input point of
// vtx. A nil logger uses slog.Default().
func NewBuilder(vtx *data.PointIO, sources *data.Collection, settings BuilderSettings, numEdgesReserve int, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		PairID:   uuid.NewString(),
		Settings: settings,
		Metadata: DefaultMetadataSettings(),
		PointIO:  vtx,
		Sources:  sources,
		Graph:    NewGraph(vtx.NumIn(), numEdgesReserve),
		EdgesIO:  &data.Collection{},
		logger:   logger,
	}
}

// NodePosition returns the position of node i.
func (b *Builder) NodePosition(i int) geom.Vec {
	var p geom.Vec
	b.Graph.View(func(nodes []Node, _ []IndexedEdge) {
		p = b.PointIO.In[nodes[i].PointIndex].Position
	})
	return p
}

// AppendNodesUnsafe adds one node per position, backed by new vertex
// points, and returns the index of the first. The caller must hold the
// graph's write lock.
func (b *Builder) AppendNodesUnsafe(positions []geom.Vec) int {
	base := len(b.PointIO.In)
	for _, p := range positions {
		b.PointIO.In = append(b.PointIO.In, data.Point{Position: p})
	}
	start, nodes := b.Graph.AddNodesUnsafe(len(positions))
	for i := range nodes {
		nodes[i].PointIndex = base + i
	}
	return start
}

// Compile partitions the graph into clusters, emits the surviving vertices
// and schedules one edge-writing task per cluster on mgr. Callers must wait
// on mgr before calling Write. With a nil mgr the edges are written inline.
// It returns false when no cluster survives.
func (b *Builder) Compile(mgr *mt.Manager) bool {
	subGraphs := b.Graph.BuildSubGraphs(b.Settings.MinSize(), b.Settings.MaxSize())
	if len(subGraphs) == 0 {
		b.CompiledSuccessfully = false
		b.logger.Warn("graph compiled without any cluster",
			slog.Int("nodes", b.Graph.NumNodes()),
			slog.Int("edges", b.Graph.NumEdges()))
		return false
	}

	b.Graph.Update(func(g *Graph) {
		b.exportVerticesUnsafe(g)
	})

	for _, sg := range subGraphs {
		sg.PointIO = b.EdgesIO.Emplace(nil)
		sg.PointIO.AddTag(b.pairTag())
		if mgr == nil {
			b.WriteSubGraphEdges(sg)
			continue
		}
		mgr.StartNonAbandonable("write-cluster", func(context.Context) bool {
			return b.WriteSubGraphEdges(sg)
		})
	}

	b.CompiledSuccessfully = true
	b.logger.Debug("graph compiled",
		slog.String("pair", b.PairID),
		slog.Int("clusters", len(subGraphs)),
		slog.Int("vertices", b.PointIO.NumOut()))
	return true
}

func (b *Builder) pairTag() string {
	return TagClusterPair + ":" + b.PairID
}

// exportVerticesUnsafe counts exported edges, prunes isolated nodes and
// writes the vertex output with its attributes.
func (b *Builder) exportVerticesUnsafe(g *Graph) {
	for i := range g.Nodes {
		g.Nodes[i].NumExportedEdges = 0
	}
	for _, sg := range g.SubGraphs {
		sg.Edges.Scan(func(ei int) bool {
			e := g.Edges[ei]
			g.Nodes[e.Start].NumExportedEdges++
			g.Nodes[e.End].NumExportedEdges++
			return true
		})
	}

	var exported []int
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !n.Valid {
			continue
		}
		if n.NumExportedEdges == 0 && b.Settings.PruneIsolatedPoints {
			n.Valid = false
			continue
		}
		exported = append(exported, i)
	}

	b.vtxKeys = make([]int64, len(g.Nodes))
	b.PointIO.InitOut(len(exported))
	vtxIndex := make([]int32, len(exported))
	edgesNum := make([]int32, len(exported))
	for k, ni := range exported {
		n := g.Nodes[ni]
		pt := b.PointIO.In[n.PointIndex]
		pt.Key = data.NewKey()
		if pt.Seed == 0 {
			data.RandomizeSeed(&pt)
		}
		b.PointIO.Out[k] = pt
		b.vtxKeys[ni] = pt.Key
		vtxIndex[k] = int32(ni)
		edgesNum[k] = int32(n.NumExportedEdges)
	}
	data.WriteAttribute(b.PointIO, AttrVtxIndex, vtxIndex)
	data.WriteAttribute(b.PointIO, AttrEdgesNum, edgesNum)

	b.writeVertexMetadataUnsafe(g, exported)
}

func (b *Builder) writeVertexMetadataUnsafe(g *Graph, exported []int) {
	m := b.Metadata
	if !(m.WriteCompounded || m.WriteCompoundSize || m.WriteIntersector || m.WriteCrossing) {
		return
	}

	compounded := make([]bool, len(exported))
	sizes := make([]int32, len(exported))
	intersector := make([]bool, len(exported))
	crossing := make([]bool, len(exported))
	for k, ni := range exported {
		md, ok := g.nodeMetadata.Get(ni)
		if !ok {
			sizes[k] = 1
			continue
		}
		compounded[k] = md.Compounded
		sizes[k] = int32(md.CompoundSize)
		intersector[k] = md.IsIntersector()
		crossing[k] = md.IsCrossing()
	}

	if m.WriteCompounded && !data.WriteAttribute(b.PointIO, m.CompoundedAttributeName, compounded) {
		b.logger.Warn("cannot bind vertex attribute", slog.String("name", m.CompoundedAttributeName))
	}
	if m.WriteCompoundSize && !data.WriteAttribute(b.PointIO, m.CompoundSizeAttributeName, sizes) {
		b.logger.Warn("cannot bind vertex attribute", slog.String("name", m.CompoundSizeAttributeName))
	}
	if m.WriteIntersector && !data.WriteAttribute(b.PointIO, m.IntersectorAttributeName, intersector) {
		b.logger.Warn("cannot bind vertex attribute", slog.String("name", m.IntersectorAttributeName))
	}
	if m.WriteCrossing && !data.WriteAttribute(b.PointIO, m.CrossingAttributeName, crossing) {
		b.logger.Warn("cannot bind vertex attribute", slog.String("name", m.CrossingAttributeName))
	}
}

// WriteSubGraphEdges writes one edge point per edge of sg into
// sg.PointIO, linking start and end vertex keys. It reports whether every
// attribute could be bound.
func (b *Builder) WriteSubGraphEdges(sg *SubGraph) bool {
	io := sg.PointIO
	if io == nil {
		return false
	}

	b.Graph.mu.RLock()
	defer b.Graph.mu.RUnlock()
	g := b.Graph

	edges := sg.EdgeIndices()
	io.InitOut(len(edges))
	starts := make([]int64, len(edges))
	ends := make([]int64, len(edges))
	var flagsA, flagsB []bool
	if b.Metadata.WriteFlags {
		flagsA = make([]bool, len(edges))
		flagsB = make([]bool, len(edges))
	}

	for k, ei := range edges {
		e := g.Edges[ei]
		start := b.PointIO.In[g.Nodes[e.Start].PointIndex].Position
		end := b.PointIO.In[g.Nodes[e.End].PointIndex].Position

		var pt data.Point
		src, hasSource := b.source(e)
		if hasSource {
			pt = src
		}
		pt.Key = data.NewKey()
		if b.Settings.WriteEdgePosition {
			pt.Position = geom.Lerp(start, end, b.Settings.EdgePosition)
		} else if !hasSource {
			pt.Position = geom.Lerp(start, end, 0.5)
		}
		if pt.Seed == 0 {
			data.RandomizeSeed(&pt)
		}
		if b.Settings.RefreshEdgeSeed {
			pt.Seed = data.ComputeSeed(pt.Position, io.IOIndex)
		}

		io.Out[k] = pt
		starts[k] = b.vtxKeys[e.Start]
		ends[k] = b.vtxKeys[e.End]

		if flagsA != nil {
			if md, ok := g.edgeMetadata.Get(ei); ok {
				flagsA[k] = md.CrossingA
				flagsB[k] = md.CrossingB
			}
		}
	}

	ok := data.WriteAttribute(io, AttrEdgeStart, starts) &&
		data.WriteAttribute(io, AttrEdgeEnd, ends)
	if flagsA != nil {
		ok = data.WriteAttribute(io, b.Metadata.FlagA, flagsA) && ok
		ok = data.WriteAttribute(io, b.Metadata.FlagB, flagsB) && ok
	}
	if !ok {
		b.logger.Warn("cannot bind edge attributes", slog.String("cluster", sg.ID))
	}
	return ok
}

func (b *Builder) source(e IndexedEdge) (data.Point, bool) {
	if b.Sources == nil || e.IOIndex < 0 {
		return data.Point{}, false
	}
	return b.Sources.Source(e.IOIndex, e.PointIndex)
}

// Write tags the outputs with the builder's pair id and returns them. It
// returns false when compilation did not succeed, in which case nothing is
// written.
func (b *Builder) Write() (Output, bool) {
	if !b.CompiledSuccessfully {
		return Output{PairID: b.PairID}, false
	}
	b.PointIO.AddTag(b.pairTag())
	return Output{
		PairID:   b.PairID,
		Vertices: b.PointIO,
		Clusters: b.EdgesIO,
	}, true
}
