package graph

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// chain builds a graph of n nodes connected 0-1-2-...-(n-1).
func chain(n int) *Graph {
	g := NewGraph(n, n)
	for i := 1; i < n; i++ {
		g.InsertEdge(i-1, i, -1, -1)
	}
	return g
}

func TestInsertEdgeIdempotent(t *testing.T) {
	g := NewGraph(3, 0)

	e, ok := g.InsertEdge(0, 1, -1, -1)
	require.True(t, ok)
	again, ok := g.InsertEdge(0, 1, -1, -1)
	assert.False(t, ok)
	assert.Equal(t, e, again)
	reversed, ok := g.InsertEdge(1, 0, -1, -1)
	assert.False(t, ok)
	assert.Equal(t, e, reversed)

	assert.Equal(t, 1, g.NumEdges())
	assert.Equal(t, []int{e}, g.Nodes[0].Edges)
	assert.Equal(t, []int{e}, g.Nodes[1].Edges)
}

func TestInsertEdgeRejectsDegenerate(t *testing.T) {
	g := NewGraph(2, 0)
	_, ok := g.InsertEdge(1, 1, -1, -1)
	assert.False(t, ok)
	_, ok = g.InsertEdge(0, 5, -1, -1)
	assert.False(t, ok)
	assert.Zero(t, g.NumEdges())
}

func TestInsertEdgesBatch(t *testing.T) {
	g := NewGraph(4, 0)
	n := g.InsertEdges([]IndexedEdge{
		{Start: 0, End: 1, IOIndex: 2, PointIndex: 7},
		{Start: 1, End: 0},
		{Start: 2, End: 3},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, g.Edges[0].IOIndex)
	assert.Equal(t, 7, g.Edges[0].PointIndex)
}

func TestAddNodes(t *testing.T) {
	g := NewGraph(2, 0)
	start := g.AddNodes(3)
	assert.Equal(t, 2, start)
	require.Equal(t, 5, g.NumNodes())
	for i, n := range g.Nodes {
		assert.True(t, n.Valid)
		assert.Equal(t, i, n.NodeIndex)
		assert.Equal(t, i, n.PointIndex)
	}
}

func TestSplitEdge(t *testing.T) {
	g := NewGraph(4, 0)
	e, _ := g.InsertEdge(0, 1, 0, 0)

	var created []int
	g.Update(func(g *Graph) {
		created = g.SplitEdgeUnsafe(e, []int{2, 3}, IntersectionPointEdge)
	})
	require.Len(t, created, 3)
	assert.False(t, g.Edges[e].Valid)
	_, found := g.FindEdge(0, 1)
	assert.False(t, found)

	for _, pair := range [][2]int{{0, 2}, {2, 3}, {3, 1}} {
		idx, ok := g.FindEdge(pair[0], pair[1])
		require.True(t, ok, "edge %v", pair)
		md, ok := g.FindEdgeMetadata(idx)
		require.True(t, ok)
		assert.Equal(t, e, md.ParentIndex)
		assert.Equal(t, IntersectionPointEdge, md.Type)
		assert.Equal(t, e, g.GetRootIndex(idx))
	}
	assert.Empty(t, g.Validate())
}

func TestGetRootIndexFollowsFullChain(t *testing.T) {
	g := NewGraph(4, 0)
	root, _ := g.InsertEdge(0, 1, -1, -1)

	g.Update(func(g *Graph) {
		g.SplitEdgeUnsafe(root, []int{2}, IntersectionPointEdge)
	})
	mid, ok := g.FindEdge(0, 2)
	require.True(t, ok)
	g.Update(func(g *Graph) {
		g.SplitEdgeUnsafe(mid, []int{3}, IntersectionEdgeEdge)
	})
	leaf, ok := g.FindEdge(3, 2)
	require.True(t, ok)

	assert.Equal(t, root, g.GetRootIndex(leaf))
	assert.Equal(t, root, g.GetRootIndex(mid))
	assert.Equal(t, root, g.GetRootIndex(root))
}

func TestGetConnectedNodes(t *testing.T) {
	g := chain(5)
	assert.Equal(t, []int{1}, g.GetConnectedNodes(0, 1))
	assert.Equal(t, []int{1, 2, 3}, g.GetConnectedNodes(0, 3))
	got := g.GetConnectedNodes(2, 1)
	sort.Ints(got)
	assert.Equal(t, []int{1, 3}, got)
	assert.Nil(t, g.GetConnectedNodes(2, 0))
	assert.Nil(t, g.GetConnectedNodes(99, 2))
}

func TestBuildSubGraphsPartition(t *testing.T) {
	g := NewGraph(9, 0)
	// Triangle, a pair, a three-node path; node 8 stays isolated.
	for _, e := range [][2]int{{0, 1}, {1, 2}, {2, 0}, {3, 4}, {5, 6}, {6, 7}} {
		g.InsertEdge(e[0], e[1], -1, -1)
	}

	subs := g.BuildSubGraphs(0, 1<<30)
	require.Len(t, subs, 3)
	assert.Empty(t, g.Validate())

	// Cross-check against gonum's connected components.
	ref := simple.NewUndirectedGraph()
	for _, e := range g.Edges {
		ref.SetEdge(simple.Edge{F: simple.Node(e.Start), T: simple.Node(e.End)})
	}
	want := map[int]int{}
	for _, cc := range topo.ConnectedComponents(ref) {
		want[len(cc)]++
	}
	got := map[int]int{}
	for _, sg := range subs {
		got[sg.Nodes.Len()]++
	}
	assert.Equal(t, want, got)

	seen := map[int]bool{}
	for _, sg := range subs {
		for _, n := range sg.NodeIndices() {
			assert.False(t, seen[n], "node %d in two sub-graphs", n)
			seen[n] = true
		}
	}
	assert.False(t, seen[8])
}

func TestBuildSubGraphsSizeFilter(t *testing.T) {
	g := NewGraph(5, 0)
	g.InsertEdge(0, 1, -1, -1)
	g.InsertEdge(2, 3, -1, -1)
	g.InsertEdge(3, 4, -1, -1)

	subs := g.BuildSubGraphs(3, 500)
	require.Len(t, subs, 1)
	assert.Equal(t, []int{2, 3, 4}, subs[0].NodeIndices())

	// The filtered pair is kept but flagged invalid.
	require.Equal(t, 5, g.NumNodes())
	require.Equal(t, 3, g.NumEdges())
	assert.False(t, g.Nodes[0].Valid)
	assert.False(t, g.Nodes[1].Valid)
	assert.False(t, g.Edges[0].Valid)
	assert.True(t, g.Edges[1].Valid)
	assert.Empty(t, g.Validate())
}

func TestSubGraphFirstInIOIndex(t *testing.T) {
	sg := NewSubGraph()
	assert.Equal(t, -1, sg.GetFirstInIOIndex())
	sg.Add(IndexedEdge{EdgeIndex: 0, Start: 0, End: 1, IOIndex: 4})
	sg.Add(IndexedEdge{EdgeIndex: 1, Start: 1, End: 2, IOIndex: 2})
	sg.Add(IndexedEdge{EdgeIndex: 2, Start: 2, End: 3, IOIndex: -1})
	assert.Equal(t, 2, sg.GetFirstInIOIndex())
	assert.Equal(t, []int{0, 1, 2}, sg.EdgeIndices())
	assert.NotEmpty(t, sg.ID)
}

func TestValidateReportsProblems(t *testing.T) {
	g := NewGraph(3, 0)
	g.InsertEdge(0, 1, -1, -1)
	g.Edges = append(g.Edges, IndexedEdge{EdgeIndex: 1, Start: 1, End: 0, Valid: true})
	g.Edges = append(g.Edges, IndexedEdge{EdgeIndex: 2, Start: 0, End: 7, Valid: true})
	g.Nodes[2].Valid = false
	g.Edges = append(g.Edges, IndexedEdge{EdgeIndex: 3, Start: 1, End: 2, Valid: true})

	errs := g.Validate()
	require.Len(t, errs, 3)
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
		assert.Equal(t, SeverityError, e.Severity)
	}
	assert.Contains(t, msgs[0], "duplicates edge 0")
	assert.Contains(t, msgs[1], "out of range")
	assert.Contains(t, msgs[2], "invalid node")
}

func TestIntersectionTypeString(t *testing.T) {
	assert.Equal(t, "point-edge", IntersectionPointEdge.String())
	assert.Equal(t, "edge-edge", IntersectionEdgeEdge.String())
	assert.Equal(t, "IntersectionType(9)", IntersectionType(9).String())
}
