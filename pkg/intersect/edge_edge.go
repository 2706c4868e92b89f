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

// EdgeEdgeSettings control edge crossing detection.
type EdgeEdgeSettings struct {
	Enabled                bool    `yaml:"enabled"`
	Tolerance              float64 `yaml:"tolerance" validate:"gte=0"`
	EnableSelfIntersection bool    `yaml:"enable_self_intersection"`
}

// DefaultEdgeEdgeSettings returns enabled detection with a small tolerance
// and self-intersection allowed.
func DefaultEdgeEdgeSettings() EdgeEdgeSettings {
	return EdgeEdgeSettings{
		Enabled:                true,
		Tolerance:              graph.DefaultFuseTolerance,
		EnableSelfIntersection: true,
	}
}

// MakeSafeForTolerance clamps the tolerance to half the point-edge
// tolerance.
func (s *EdgeEdgeSettings) MakeSafeForTolerance(pointEdgeTolerance float64) {
	s.Tolerance = clamp(s.Tolerance, 0, pointEdgeTolerance*0.5)
}

// EESplit is the crossing point of two edges.
type EESplit struct {
	TimeA  float64
	TimeB  float64
	Center geom.Vec
}

// EECrossing is an accepted crossing between EdgeA and EdgeB. NodeIndex is
// assigned during Insert.
type EECrossing struct {
	NodeIndex int
	EdgeA     int
	EdgeB     int
	Split     EESplit
}

// EdgeEdgeProxy is the read-only view of one edge used during discovery.
type EdgeEdgeProxy struct {
	Edge graph.IndexedEdge
	A, B geom.Vec
	Box  geom.Box // segment box padded by the tolerance
}

// FindSplit tests whether p and other cross within tolerance, strictly
// inside both segments.
func (p *EdgeEdgeProxy) FindSplit(other *EdgeEdgeProxy, tolerance float64) (EESplit, bool) {
	res := geom.ClosestSegments(p.A, p.B, other.A, other.B)
	if res.DistSquared() > tolerance*tolerance {
		return EESplit{}, false
	}
	if !geom.StrictlyInside(res.TimeA) || !geom.StrictlyInside(res.TimeB) {
		return EESplit{}, false
	}
	return EESplit{TimeA: res.TimeA, TimeB: res.TimeB, Center: res.Center()}, true
}

// EdgeEdgeIntersections finds crossings between edges of a builder's graph.
type EdgeEdgeIntersections struct {
	Builder  *graph.Builder
	Settings EdgeEdgeSettings

	// EdgesCompounds comes from ingestion; nil disables self-intersection
	// exclusion.
	EdgesCompounds *data.IdxCompoundList

	Edges []*EdgeEdgeProxy

	index *spatial.Index[int]

	mu           sync.Mutex
	checkedPairs map[uint64]struct{}
	Crossings    []*EECrossing

	logger *slog.Logger
}

// NewEdgeEdgeIntersections snapshots the valid edges of b.
func NewEdgeEdgeIntersections(b *graph.Builder, edgesCompounds *data.IdxCompoundList, settings EdgeEdgeSettings, logger *slog.Logger) *EdgeEdgeIntersections {
	if logger == nil {
		logger = slog.Default()
	}
	ee := &EdgeEdgeIntersections{
		Builder:        b,
		Settings:       settings,
		EdgesCompounds: edgesCompounds,
		checkedPairs:   make(map[uint64]struct{}),
		logger:         logger,
	}

	b.Graph.View(func(nodes []graph.Node, edges []graph.IndexedEdge) {
		for _, e := range edges {
			if !e.Valid {
				continue
			}
			a := b.PointIO.In[nodes[e.Start].PointIndex].Position
			c := b.PointIO.In[nodes[e.End].PointIndex].Position
			ee.Edges = append(ee.Edges, &EdgeEdgeProxy{
				Edge: e,
				A:    a,
				B:    c,
				Box:  geom.Expand(geom.SegmentBox(a, c), settings.Tolerance),
			})
		}
	})

	ee.index = spatial.New(func(i int) geom.Box { return ee.Edges[i].Box })
	for i := range ee.Edges {
		ee.index.InsertUnsafe(i)
	}
	return ee
}

// FindIntersections schedules discovery over every edge. The caller waits
// on mgr before calling Insert. With a nil mgr discovery runs inline.
func (ee *EdgeEdgeIntersections) FindIntersections(mgr *mt.Manager) {
	if mgr == nil {
		for i := range ee.Edges {
			ee.FindCrossings(i)
		}
		return
	}
	mgr.StartRanges("edge-edge", len(ee.Edges), 0, func(_ context.Context, start, count int) bool {
		for i := start; i < start+count; i++ {
			ee.FindCrossings(i)
		}
		return true
	})
}

// AlreadyChecked records the pair and reports whether it had been seen.
func (ee *EdgeEdgeIntersections) AlreadyChecked(a, b int) bool {
	key := data.H64U(uint32(a), uint32(b))
	ee.mu.Lock()
	defer ee.mu.Unlock()
	if _, ok := ee.checkedPairs[key]; ok {
		return true
	}
	ee.checkedPairs[key] = struct{}{}
	return false
}

// FindCrossings tests edge proxy i against every overlapping edge.
func (ee *EdgeEdgeIntersections) FindCrossings(i int) bool {
	proxy := ee.Edges[i]
	g := ee.Builder.Graph

	ee.index.Query(proxy.Box, func(j int) bool {
		if j == i {
			return true
		}
		other := ee.Edges[j]
		if proxy.Edge.SharesEndpoint(other.Edge) {
			return true
		}
		if ee.AlreadyChecked(proxy.Edge.EdgeIndex, other.Edge.EdgeIndex) {
			return true
		}
		split, ok := proxy.FindSplit(other, ee.Settings.Tolerance)
		if !ok {
			return true
		}
		if !ee.Settings.EnableSelfIntersection && ee.EdgesCompounds != nil {
			rootA := g.GetRootIndex(proxy.Edge.EdgeIndex)
			rootB := g.GetRootIndex(other.Edge.EdgeIndex)
			if rootA < ee.EdgesCompounds.Len() && rootB < ee.EdgesCompounds.Len() &&
				ee.EdgesCompounds.HasIOIndexOverlap(rootA, rootB) {
				return true
			}
		}

		// Keep EdgeA the lower index so the crossing is independent of
		// which edge found it.
		c := &EECrossing{NodeIndex: -1, EdgeA: proxy.Edge.EdgeIndex, EdgeB: other.Edge.EdgeIndex, Split: split}
		if c.EdgeA > c.EdgeB {
			c.EdgeA, c.EdgeB = c.EdgeB, c.EdgeA
			c.Split.TimeA, c.Split.TimeB = c.Split.TimeB, c.Split.TimeA
		}
		ee.mu.Lock()
		ee.Crossings = append(ee.Crossings, c)
		ee.mu.Unlock()
		return true
	})
	return true
}

type edgeSplit struct {
	node int
	time float64
}

// Insert creates one node per crossing and rewires both edges through it.
// Coincident crossings are not merged. It returns the number of nodes
// created.
func (ee *EdgeEdgeIntersections) Insert() int {
	if len(ee.Crossings) == 0 {
		return 0
	}
	sort.Slice(ee.Crossings, func(i, j int) bool {
		a, b := ee.Crossings[i], ee.Crossings[j]
		if a.EdgeA != b.EdgeA {
			return a.EdgeA < b.EdgeA
		}
		return a.EdgeB < b.EdgeB
	})

	b := ee.Builder
	b.Graph.Update(func(g *graph.Graph) {
		positions := make([]geom.Vec, len(ee.Crossings))
		for i, c := range ee.Crossings {
			positions[i] = c.Split.Center
		}
		first := b.AppendNodesUnsafe(positions)

		splits := make(map[int][]edgeSplit)
		sideA := make(map[int]bool)
		sideB := make(map[int]bool)
		for i, c := range ee.Crossings {
			c.NodeIndex = first + i
			g.GetOrCreateNodeMetadataUnsafe(c.NodeIndex).Type = graph.IntersectionEdgeEdge
			splits[c.EdgeA] = append(splits[c.EdgeA], edgeSplit{node: c.NodeIndex, time: c.Split.TimeA})
			splits[c.EdgeB] = append(splits[c.EdgeB], edgeSplit{node: c.NodeIndex, time: c.Split.TimeB})
			sideA[c.EdgeA] = true
			sideB[c.EdgeB] = true
		}

		edges := make([]int, 0, len(splits))
		for e := range splits {
			edges = append(edges, e)
		}
		sort.Ints(edges)

		for _, e := range edges {
			s := splits[e]
			sort.Slice(s, func(i, j int) bool {
				if s[i].time != s[j].time {
					return s[i].time < s[j].time
				}
				return s[i].node < s[j].node
			})
			through := make([]int, len(s))
			for i := range s {
				through[i] = s[i].node
			}
			for _, child := range g.SplitEdgeUnsafe(e, through, graph.IntersectionEdgeEdge) {
				md := g.GetOrCreateEdgeMetadataUnsafe(child, e)
				md.CrossingA = sideA[e]
				md.CrossingB = sideB[e]
			}
		}
	})

	ee.logger.Debug("edge-edge intersections inserted",
		slog.Int("edges", len(ee.Edges)),
		slog.Int("crossings", len(ee.Crossings)))
	return len(ee.Crossings)
}
