package refine

import (
	"testing"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/geom"
	"github.com/chazu/filament/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, closed bool, pts ...geom.Vec) graph.Output {
	t.Helper()
	sources := &data.Collection{}
	lg := graph.NewLooseGraph(graph.DefaultFuseSettings())
	require.True(t, lg.InsertPath(sources.Emplace(data.FromPositions(pts...)), closed))
	lg.UpdateCenters(sources)

	b := graph.NewBuilder(data.NewPointIO(0, lg.Consolidate()), sources, graph.DefaultBuilderSettings(), lg.NumEdges(), nil)
	b.Graph.InsertEdges(lg.GetUniqueEdges())
	require.True(t, b.Compile(nil))
	out, ok := b.Write()
	require.True(t, ok)
	return out
}

func TestPrimMSTDropsLongestCycleEdge(t *testing.T) {
	out := compile(t, true, geom.Vec{}, geom.Vec{X: 1}, geom.Vec{Y: 3})
	cluster := out.Clusters.At(0)
	require.Equal(t, 3, cluster.NumOut())

	tree, dropped, ok := PrimMST(out.Vertices, cluster, 7)
	require.True(t, ok)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 7, tree.IOIndex)
	assert.True(t, tree.HasTag(TagRefined))
	require.Equal(t, 2, tree.NumOut())

	keys, ok := graph.GetRemappedIndices(out.Vertices)
	require.True(t, ok)
	edges, ok := graph.GetReducedVtxIndices(tree, keys)
	require.True(t, ok)
	require.Len(t, edges, 2)
	for _, e := range edges {
		a := out.Vertices.Out[e.Start].Position
		b := out.Vertices.Out[e.End].Position
		// The 1-to-(0,3) side is the longest and must be gone.
		assert.Less(t, geom.Dist(a, b), 3.1)
	}
}

func TestPrimMSTKeepsTree(t *testing.T) {
	out := compile(t, false, geom.Vec{}, geom.Vec{X: 1}, geom.Vec{X: 2}, geom.Vec{X: 3})
	tree, dropped, ok := PrimMST(out.Vertices, out.Clusters.At(0), 0)
	require.True(t, ok)
	assert.Zero(t, dropped)
	assert.Equal(t, 3, tree.NumOut())
	assert.True(t, graph.IsPointDataEdgeReady(tree))
}

func TestPrimMSTUnresolvedCluster(t *testing.T) {
	out := compile(t, false, geom.Vec{}, geom.Vec{X: 1})
	_, _, ok := PrimMST(out.Vertices, data.NewPointIO(0, nil), 0)
	assert.False(t, ok)

	broken := data.NewPointIO(0, nil)
	broken.Out = []data.Point{{}}
	_, _, ok = PrimMST(broken, out.Clusters.At(0), 0)
	assert.False(t, ok)
}
