// Package intersect finds and resolves geometric intersections in a
// compiled graph: nodes lying on edges they are not part of, and edges
// crossing each other. Discovery runs as parallel read-only tasks; results
// are applied to the graph in a single sequential Insert pass.
package intersect

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/geom"
	"github.com/chazu/filament/pkg/graph"
	"github.com/chazu/filament/pkg/mt"
	"github.com/chazu/filament/pkg/spatial"
)

// PointEdgeSettings control point-on-edge detection.
type PointEdgeSettings struct {
	Enabled                bool    `yaml:"enabled"`
	Tolerance              float64 `yaml:"tolerance" validate:"gte=0"`
	EnableSelfIntersection bool    `yaml:"enable_self_intersection"`
}

// DefaultPointEdgeSettings returns enabled detection with a small
// tolerance and self-intersection allowed.
func DefaultPointEdgeSettings() PointEdgeSettings {
	return PointEdgeSettings{
		Enabled:                true,
		Tolerance:              graph.DefaultFuseTolerance,
		EnableSelfIntersection: true,
	}
}

// MakeSafeForTolerance clamps the tolerance to half the fuse tolerance so
// a split never lands on a point that would have fused with an endpoint.
func (s *PointEdgeSettings) MakeSafeForTolerance(fuseTolerance float64) {
	s.Tolerance = clamp(s.Tolerance, 0, fuseTolerance*0.5)
}

// PESplit is a node found on an edge.
type PESplit struct {
	NodeIndex    int
	Time         float64
	ClosestPoint geom.Vec
}

// PointEdgeProxy is the read-only view of one edge used during discovery.
type PointEdgeProxy struct {
	EdgeIndex int
	Start     int
	End       int
	A, B      geom.Vec
	Box       geom.Box // segment box padded by the tolerance

	mu     sync.Mutex
	Splits []PESplit
}

// FindSplit tests whether position lies on the segment within tolerance,
// strictly between the endpoints.
func (p *PointEdgeProxy) FindSplit(position geom.Vec, tolerance float64) (PESplit, bool) {
	closest, t := geom.ClosestOnSegment(position, p.A, p.B)
	if !geom.StrictlyInside(t) {
		return PESplit{}, false
	}
	if geom.DistSquared(closest, position) > tolerance*tolerance {
		return PESplit{}, false
	}
	return PESplit{Time: t, ClosestPoint: closest}, true
}

func (p *PointEdgeProxy) add(s PESplit) {
	p.mu.Lock()
	p.Splits = append(p.Splits, s)
	p.mu.Unlock()
}

// PointEdgeIntersections finds nodes lying on edges of a builder's graph.
type PointEdgeIntersections struct {
	Builder  *graph.Builder
	Settings PointEdgeSettings

	// PointsCompounds and EdgesCompounds come from ingestion; either may be
	// nil, which disables self-intersection exclusion.
	PointsCompounds *data.IdxCompoundList
	EdgesCompounds  *data.IdxCompoundList

	Edges []*PointEdgeProxy

	nodes  *spatial.Index[nodeEntry]
	logger *slog.Logger
}

type nodeEntry struct {
	index    int
	position geom.Vec
}

// NewPointEdgeIntersections snapshots the valid edges and nodes of b.
func NewPointEdgeIntersections(b *graph.Builder, pointsCompounds, edgesCompounds *data.IdxCompoundList, settings PointEdgeSettings, logger *slog.Logger) *PointEdgeIntersections {
	if logger == nil {
		logger = slog.Default()
	}
	pe := &PointEdgeIntersections{
		Builder:         b,
		Settings:        settings,
		PointsCompounds: pointsCompounds,
		EdgesCompounds:  edgesCompounds,
		nodes:           spatial.New(func(n nodeEntry) geom.Box { return geom.PointBox(n.position) }),
		logger:          logger,
	}

	b.Graph.View(func(nodes []graph.Node, edges []graph.IndexedEdge) {
		for _, n := range nodes {
			if !n.Valid {
				continue
			}
			pe.nodes.InsertUnsafe(nodeEntry{index: n.NodeIndex, position: b.PointIO.In[n.PointIndex].Position})
		}
		for _, e := range edges {
			if !e.Valid {
				continue
			}
			a := b.PointIO.In[nodes[e.Start].PointIndex].Position
			c := b.PointIO.In[nodes[e.End].PointIndex].Position
			pe.Edges = append(pe.Edges, &PointEdgeProxy{
				EdgeIndex: e.EdgeIndex,
				Start:     e.Start,
				End:       e.End,
				A:         a,
				B:         c,
				Box:       geom.Expand(geom.SegmentBox(a, c), settings.Tolerance),
			})
		}
	})
	return pe
}

// FindIntersections schedules one discovery task per chunk of edges. The
// caller waits on mgr before calling Insert. With a nil mgr discovery runs
// inline.
func (pe *PointEdgeIntersections) FindIntersections(mgr *mt.Manager) {
	if mgr == nil {
		for i := range pe.Edges {
			pe.FindCollinearNodes(i)
		}
		return
	}
	mgr.StartRanges("point-edge", len(pe.Edges), 0, func(_ context.Context, start, count int) bool {
		for i := start; i < start+count; i++ {
			pe.FindCollinearNodes(i)
		}
		return true
	})
}

// FindCollinearNodes records every node lying on edge proxy i.
func (pe *PointEdgeIntersections) FindCollinearNodes(i int) bool {
	proxy := pe.Edges[i]
	root := pe.Builder.Graph.GetRootIndex(proxy.EdgeIndex)

	pe.nodes.Query(proxy.Box, func(n nodeEntry) bool {
		if n.index == proxy.Start || n.index == proxy.End {
			return true
		}
		split, ok := proxy.FindSplit(n.position, pe.Settings.Tolerance)
		if !ok {
			return true
		}
		if !pe.Settings.EnableSelfIntersection && pe.isSelf(n.index, root) {
			return true
		}
		split.NodeIndex = n.index
		proxy.add(split)
		return true
	})
	return true
}

// isSelf reports whether node and edge share a source dataset.
func (pe *PointEdgeIntersections) isSelf(node, rootEdge int) bool {
	if pe.PointsCompounds == nil || pe.EdgesCompounds == nil {
		return false
	}
	if node >= pe.PointsCompounds.Len() || rootEdge >= pe.EdgesCompounds.Len() {
		return false
	}
	return pe.PointsCompounds.HasIOIndexOverlapWith(node, pe.EdgesCompounds, rootEdge)
}

// NumSplits returns the number of splits found so far.
func (pe *PointEdgeIntersections) NumSplits() int {
	n := 0
	for _, p := range pe.Edges {
		n += len(p.Splits)
	}
	return n
}

// Insert splices every found node into its edge, in order along the
// segment, and marks it as an intersector. It returns the number of edges
// split.
func (pe *PointEdgeIntersections) Insert() int {
	split := 0
	pe.Builder.Graph.Update(func(g *graph.Graph) {
		for _, proxy := range pe.Edges {
			if len(proxy.Splits) == 0 {
				continue
			}
			sort.Slice(proxy.Splits, func(i, j int) bool {
				a, b := proxy.Splits[i], proxy.Splits[j]
				if a.Time != b.Time {
					return a.Time < b.Time
				}
				return a.NodeIndex < b.NodeIndex
			})
			through := make([]int, 0, len(proxy.Splits))
			for _, s := range proxy.Splits {
				through = append(through, s.NodeIndex)
				g.GetOrCreateNodeMetadataUnsafe(s.NodeIndex).Type = graph.IntersectionPointEdge
			}
			if created := g.SplitEdgeUnsafe(proxy.EdgeIndex, through, graph.IntersectionPointEdge); len(created) > 0 {
				split++
			}
		}
	})
	pe.logger.Debug("point-edge intersections inserted",
		slog.Int("edges", len(pe.Edges)),
		slog.Int("splits", pe.NumSplits()),
		slog.Int("split_edges", split))
	return split
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
