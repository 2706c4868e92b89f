package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/geom"
	"github.com/chazu/filament/pkg/mt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFromPaths runs ingestion and hands the unique edges to a builder.
func buildFromPaths(t *testing.T, settings BuilderSettings, tol float64, paths ...[]geom.Vec) (*Builder, *LooseGraph) {
	t.Helper()
	sources := &data.Collection{}
	lg := NewLooseGraph(fuse(tol))
	for _, p := range paths {
		io := sources.Emplace(data.FromPositions(p...))
		lg.InsertPath(io, false)
	}
	lg.UpdateCenters(sources)

	vtx := data.NewPointIO(0, lg.Consolidate())
	b := NewBuilder(vtx, sources, settings, lg.NumEdges(), nil)
	b.Graph.InsertEdges(lg.GetUniqueEdges())
	return b, lg
}

func TestBuilderSettingsBounds(t *testing.T) {
	s := DefaultBuilderSettings()
	assert.Equal(t, 0, s.MinSize())
	assert.Greater(t, s.MaxSize(), 1<<30)
	s.RemoveSmallClusters = true
	s.RemoveBigClusters = true
	assert.Equal(t, 3, s.MinSize())
	assert.Equal(t, 500, s.MaxSize())
}

func TestCompileRoundTrip(t *testing.T) {
	b, lg := buildFromPaths(t, DefaultBuilderSettings(), 0,
		[]geom.Vec{{}, {X: 1}, {X: 2}},
		[]geom.Vec{{X: 10}, {X: 11}},
	)
	mgr := mt.NewManager(context.Background(), 2, nil)
	require.True(t, b.Compile(mgr))
	require.NoError(t, mgr.Wait())

	out, ok := b.Write()
	require.True(t, ok)
	assert.Equal(t, lg.NumNodes(), out.Vertices.NumOut())
	require.Equal(t, 2, out.Clusters.Len())

	require.True(t, IsPointDataVtxReady(out.Vertices))
	keys, ok := GetRemappedIndices(out.Vertices)
	require.True(t, ok)

	var got [][2]int
	for _, io := range out.Clusters.Pairs {
		require.True(t, IsPointDataEdgeReady(io))
		assert.True(t, io.HasTag(TagClusterPair+":"+out.PairID))
		edges, ok := GetReducedVtxIndices(io, keys)
		require.True(t, ok)
		for _, e := range edges {
			got = append(got, [2]int{e.Start, e.End})
		}
	}
	var want [][2]int
	for _, e := range lg.GetUniqueEdges() {
		want = append(want, [2]int{e.Start, e.End})
	}
	// Vertex output order matches node order when nothing is pruned.
	assert.ElementsMatch(t, want, got)
	assert.True(t, out.Vertices.HasTag(TagClusterPair+":"+out.PairID))
}

func TestCompileEdgePositionAndSeed(t *testing.T) {
	settings := DefaultBuilderSettings()
	settings.EdgePosition = 0.25
	settings.RefreshEdgeSeed = true
	b, _ := buildFromPaths(t, settings, 0, []geom.Vec{{}, {X: 8}})
	require.True(t, b.Compile(nil))

	edges := b.EdgesIO.At(0)
	require.Equal(t, 1, edges.NumOut())
	pt := edges.Out[0]
	assert.InDelta(t, 2, pt.Position.X, 1e-12)
	assert.Equal(t, data.ComputeSeed(pt.Position, edges.IOIndex), pt.Seed)
	assert.NotZero(t, pt.Key)
}

func TestCompileWithoutEdgePositionCopiesSource(t *testing.T) {
	settings := DefaultBuilderSettings()
	settings.WriteEdgePosition = false
	b, _ := buildFromPaths(t, settings, 0, []geom.Vec{{X: 3}, {X: 8}})
	require.True(t, b.Compile(nil))
	assert.Equal(t, 3.0, b.EdgesIO.At(0).Out[0].Position.X)
	assert.NotZero(t, b.EdgesIO.At(0).Out[0].Seed)
}

func TestCompileFiltersSmallClusters(t *testing.T) {
	settings := DefaultBuilderSettings()
	settings.RemoveSmallClusters = true
	b, _ := buildFromPaths(t, settings, 0,
		[]geom.Vec{{}, {X: 1}},
		[]geom.Vec{{Y: 5}, {X: 1, Y: 5}, {X: 2, Y: 5}},
	)
	require.True(t, b.Compile(nil))
	out, ok := b.Write()
	require.True(t, ok)

	assert.Equal(t, 1, out.Clusters.Len())
	assert.Equal(t, 3, out.Vertices.NumOut())
	assert.False(t, b.Graph.Nodes[0].Valid)
	assert.False(t, b.Graph.Nodes[1].Valid)
	assert.False(t, b.Graph.Edges[0].Valid)
	assert.Equal(t, 5, b.Graph.NumNodes())
}

func TestCompileNoClusters(t *testing.T) {
	settings := DefaultBuilderSettings()
	settings.RemoveSmallClusters = true
	settings.MinClusterSize = 10
	b, _ := buildFromPaths(t, settings, 0, []geom.Vec{{}, {X: 1}})
	assert.False(t, b.Compile(nil))
	out, ok := b.Write()
	assert.False(t, ok)
	assert.Nil(t, out.Vertices)
}

func TestCompileKeepsIsolatedWhenNotPruning(t *testing.T) {
	settings := DefaultBuilderSettings()
	settings.PruneIsolatedPoints = false
	vtx := data.NewPointIO(0, data.FromPositions(geom.Vec{}, geom.Vec{X: 1}, geom.Vec{X: 9}))
	b := NewBuilder(vtx, nil, settings, 1, nil)
	b.Graph.InsertEdge(0, 1, -1, -1)
	require.True(t, b.Compile(nil))
	assert.Equal(t, 3, vtx.NumOut())

	nums, ok := data.ReadAttribute[int32](vtx, AttrEdgesNum)
	require.True(t, ok)
	assert.Equal(t, []int32{1, 1, 0}, nums)

	settings.PruneIsolatedPoints = true
	vtx2 := data.NewPointIO(0, data.FromPositions(geom.Vec{}, geom.Vec{X: 1}, geom.Vec{X: 9}))
	b2 := NewBuilder(vtx2, nil, settings, 1, nil)
	b2.Graph.InsertEdge(0, 1, -1, -1)
	require.True(t, b2.Compile(nil))
	assert.Equal(t, 2, vtx2.NumOut())
}

func TestCompileVertexMetadata(t *testing.T) {
	b, lg := buildFromPaths(t, DefaultBuilderSettings(), 0.01,
		[]geom.Vec{{}, {X: 1}},
		[]geom.Vec{{X: 1}, {X: 2}},
	)
	lg.WriteMetadata(b.Graph)
	b.Metadata.WriteCompounded = true
	b.Metadata.WriteCompoundSize = true
	require.True(t, b.Compile(nil))

	compounded, ok := data.ReadAttribute[bool](b.PointIO, b.Metadata.CompoundedAttributeName)
	require.True(t, ok)
	sizes, ok := data.ReadAttribute[int32](b.PointIO, b.Metadata.CompoundSizeAttributeName)
	require.True(t, ok)
	assert.Equal(t, []bool{false, true, false}, compounded)
	assert.Equal(t, []int32{1, 2, 1}, sizes)
}

func TestReducedVtxIndicesMismatch(t *testing.T) {
	io := data.NewPointIO(0, nil)
	io.InitOut(2)
	require.True(t, data.WriteAttribute(io, AttrEdgeStart, []int64{1, 2}))
	io.Out = io.Out[:1]
	require.True(t, data.WriteAttribute(io, AttrEdgeEnd, []int64{2}))

	_, ok := GetReducedVtxIndices(io, map[int64]int{1: 0, 2: 1})
	assert.False(t, ok)
	assert.False(t, IsPointDataVtxReady(io))
}

func TestReducedVtxIndicesDropsUnknown(t *testing.T) {
	io := data.NewPointIO(4, nil)
	io.InitOut(2)
	require.True(t, data.WriteAttribute(io, AttrEdgeStart, []int64{1, 1}))
	require.True(t, data.WriteAttribute(io, AttrEdgeEnd, []int64{2, 42}))

	edges, ok := GetReducedVtxIndices(io, map[int64]int{1: 0, 2: 1})
	require.True(t, ok)
	require.Len(t, edges, 1)
	assert.Equal(t, 4, edges[0].IOIndex)
	assert.Equal(t, 0, edges[0].PointIndex)
}

func TestAppendNodes(t *testing.T) {
	vtx := data.NewPointIO(0, data.FromPositions(geom.Vec{}))
	b := NewBuilder(vtx, nil, DefaultBuilderSettings(), 0, nil)
	var first int
	b.Graph.Update(func(*Graph) {
		first = b.AppendNodesUnsafe([]geom.Vec{{X: 4}, {X: 5}})
	})
	assert.Equal(t, 1, first)
	assert.Equal(t, 3, vtx.NumIn())
	assert.Equal(t, 5.0, b.NodePosition(2).X)
	assert.True(t, strings.HasPrefix(b.pairTag(), TagClusterPair))
}
