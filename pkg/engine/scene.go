package engine

import (
	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/graph"
	"github.com/chazu/filament/pkg/intersect"
	"github.com/chazu/filament/pkg/pipeline"
)

// Scene is the output of a script: the paths it declared and the settings
// it overrode. Nil overrides leave the caller's settings untouched.
type Scene struct {
	Paths *data.Collection

	Fuse      *graph.FuseSettings
	PointEdge *intersect.PointEdgeSettings
	EdgeEdge  *intersect.EdgeEdgeSettings

	MinClusterSize *int
	MaxClusterSize *int

	Workers             *int
	Refine              *bool
	ClosedLoop          *bool
	ConcurrentIngestion *bool
}

// NewScene returns an empty scene.
func NewScene() *Scene {
	return &Scene{Paths: &data.Collection{}}
}

// NumPaths returns the number of declared paths.
func (s *Scene) NumPaths() int { return s.Paths.Len() }

// Apply copies every override of s into settings.
func (s *Scene) Apply(settings *pipeline.Settings) {
	if s.Fuse != nil {
		settings.Fuse = *s.Fuse
	}
	if s.PointEdge != nil {
		settings.PointEdge = *s.PointEdge
	}
	if s.EdgeEdge != nil {
		settings.EdgeEdge = *s.EdgeEdge
	}
	if s.MinClusterSize != nil {
		settings.Builder.RemoveSmallClusters = true
		settings.Builder.MinClusterSize = *s.MinClusterSize
	}
	if s.MaxClusterSize != nil {
		settings.Builder.RemoveBigClusters = true
		settings.Builder.MaxClusterSize = *s.MaxClusterSize
	}
	if s.Workers != nil {
		settings.Workers = *s.Workers
	}
	if s.Refine != nil {
		settings.Refine = *s.Refine
	}
	if s.ClosedLoop != nil {
		settings.ClosedLoop = *s.ClosedLoop
	}
	if s.ConcurrentIngestion != nil {
		settings.ConcurrentIngestion = *s.ConcurrentIngestion
	}
}
