package graph

import (
	"github.com/chazu/filament/pkg/data"
	"github.com/google/uuid"
	"github.com/tidwall/btree"
)

// SubGraph is one connected component of the graph.
type SubGraph struct {
	ID               string
	Nodes            btree.Set[int]
	Edges            btree.Set[int]
	EdgesInIOIndices btree.Set[int]

	// PointIO is the edge dataset the cluster is written into.
	PointIO *data.PointIO
}

// NewSubGraph creates an empty sub-graph with a fresh id.
func NewSubGraph() *SubGraph {
	return &SubGraph{ID: uuid.NewString()}
}

// Add records an edge and both its endpoints.
func (s *SubGraph) Add(e IndexedEdge) {
	s.Nodes.Insert(e.Start)
	s.Nodes.Insert(e.End)
	s.Edges.Insert(e.EdgeIndex)
	if e.IOIndex >= 0 {
		s.EdgesInIOIndices.Insert(e.IOIndex)
	}
}

// Invalidate flags every node and edge of the sub-graph as invalid. The
// caller must hold the graph's write lock.
func (s *SubGraph) Invalidate(g *Graph) {
	s.Edges.Scan(func(ei int) bool {
		g.InvalidateEdgeUnsafe(ei)
		return true
	})
	s.Nodes.Scan(func(n int) bool {
		g.Nodes[n].Valid = false
		return true
	})
}

// GetFirstInIOIndex returns the smallest source IO index contributing an
// edge, or -1 when none is known.
func (s *SubGraph) GetFirstInIOIndex() int {
	first := -1
	s.EdgesInIOIndices.Scan(func(io int) bool {
		first = io
		return false
	})
	return first
}

// NodeIndices returns the node indices in ascending order.
func (s *SubGraph) NodeIndices() []int {
	out := make([]int, 0, s.Nodes.Len())
	s.Nodes.Scan(func(n int) bool {
		out = append(out, n)
		return true
	})
	return out
}

// EdgeIndices returns the edge indices in ascending order.
func (s *SubGraph) EdgeIndices() []int {
	out := make([]int, 0, s.Edges.Len())
	s.Edges.Scan(func(e int) bool {
		out = append(out, e)
		return true
	})
	return out
}

// BuildSubGraphs partitions valid nodes and edges into connected
// components. Components whose node count falls outside [min, max] are
// invalidated instead of removed. Nodes without valid edges belong to no
// sub-graph.
func (g *Graph) BuildSubGraphs(min, max int) []*SubGraph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.SubGraphs = g.SubGraphs[:0]
	visited := make([]bool, len(g.Nodes))

	for seed := range g.Nodes {
		if visited[seed] || !g.Nodes[seed].Valid || len(g.Nodes[seed].Edges) == 0 {
			continue
		}

		sg := NewSubGraph()
		visited[seed] = true
		queue := []int{seed}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for _, ei := range g.Nodes[n].Edges {
				e := g.Edges[ei]
				if !e.Valid {
					continue
				}
				other := e.Other(n)
				if !g.Nodes[other].Valid {
					continue
				}
				sg.Add(e)
				if !visited[other] {
					visited[other] = true
					queue = append(queue, other)
				}
			}
		}

		if size := sg.Nodes.Len(); sg.Edges.Len() == 0 || size < min || size > max {
			sg.Invalidate(g)
			continue
		}
		g.SubGraphs = append(g.SubGraphs, sg)
	}

	return g.SubGraphs
}
