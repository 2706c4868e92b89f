package pipeline

import (
	"github.com/chazu/filament/pkg/graph"
	"github.com/chazu/filament/pkg/intersect"
)

// Settings configure a PathsToEdgeClusters run.
type Settings struct {
	// Workers bounds concurrent tasks; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0"`
	// ClosedLoop joins the last point of every path back to its first.
	ClosedLoop bool `yaml:"closed_loop"`
	// ConcurrentIngestion inserts paths from parallel tasks. Node indices
	// then depend on scheduling, so the default is sequential.
	ConcurrentIngestion bool `yaml:"concurrent_ingestion"`
	// Refine reduces every cluster to its minimum spanning tree.
	Refine bool `yaml:"refine"`

	Fuse      graph.FuseSettings          `yaml:"fuse"`
	PointEdge intersect.PointEdgeSettings `yaml:"point_edge"`
	EdgeEdge  intersect.EdgeEdgeSettings  `yaml:"edge_edge"`
	Builder   graph.BuilderSettings       `yaml:"builder"`
	Metadata  graph.MetadataSettings      `yaml:"metadata"`
}

// DefaultSettings returns sequential ingestion with both intersection
// passes enabled.
func DefaultSettings() Settings {
	return Settings{
		Fuse:      graph.DefaultFuseSettings(),
		PointEdge: intersect.DefaultPointEdgeSettings(),
		EdgeEdge:  intersect.DefaultEdgeEdgeSettings(),
		Builder:   graph.DefaultBuilderSettings(),
		Metadata:  graph.DefaultMetadataSettings(),
	}
}

// safe returns a copy with intersection tolerances clamped against the
// fuse tolerance.
func (s Settings) safe() Settings {
	s.PointEdge.MakeSafeForTolerance(s.Fuse.MaxTolerance())
	s.EdgeEdge.MakeSafeForTolerance(s.PointEdge.Tolerance)
	return s
}
