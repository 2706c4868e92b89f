// Package refine post-processes compiled clusters.
package refine

import (
	"math"
	"sort"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/geom"
	"github.com/chazu/filament/pkg/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// TagRefined is attached to every dataset produced by PrimMST.
const TagRefined = "Refined:MST"

// PrimMST reduces a cluster edge dataset to its minimum spanning tree,
// weighting each edge by the distance between its vertices. The result is
// a new dataset whose output keeps the tree edges, with their attributes,
// in their original order. It also returns the number of dropped edges.
// It fails when the cluster cannot be resolved against vertices.
func PrimMST(vertices, cluster *data.PointIO, ioIndex int) (*data.PointIO, int, bool) {
	keys, ok := graph.GetRemappedIndices(vertices)
	if !ok {
		return nil, 0, false
	}
	edges, ok := graph.GetReducedVtxIndices(cluster, keys)
	if !ok {
		return nil, 0, false
	}

	src := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	byPair := make(map[uint64]int, len(edges))
	for _, e := range edges {
		key := data.H64U(uint32(e.Start), uint32(e.End))
		if _, dup := byPair[key]; dup {
			continue
		}
		byPair[key] = e.PointIndex
		w := geom.Dist(vertices.Out[e.Start].Position, vertices.Out[e.End].Position)
		src.SetWeightedEdge(src.NewWeightedEdge(simple.Node(e.Start), simple.Node(e.End), w))
	}

	dst := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	path.Prim(dst, src)

	keep := make([]int, 0, len(byPair))
	it := dst.Edges()
	for it.Next() {
		e := it.Edge()
		key := data.H64U(uint32(e.From().ID()), uint32(e.To().ID()))
		if pt, ok := byPair[key]; ok {
			keep = append(keep, pt)
		}
	}
	sort.Ints(keep)

	out := cluster.Select(ioIndex, keep)
	out.AddTag(TagRefined)
	return out, cluster.NumOut() - len(keep), true
}
