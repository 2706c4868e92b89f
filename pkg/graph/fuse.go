package graph

import (
	"math"

	"github.com/chazu/filament/pkg/geom"
)

// DefaultFuseTolerance is the default fuse radius.
const DefaultFuseTolerance = 0.001

// FuseSettings control when two positions collapse into a single node.
type FuseSettings struct {
	Tolerance     float64  `yaml:"tolerance" validate:"gte=0"`
	ComponentWise bool     `yaml:"component_wise"`
	Tolerances    geom.Vec `yaml:"tolerances"`
}

// DefaultFuseSettings returns a euclidean fuse with DefaultFuseTolerance.
func DefaultFuseSettings() FuseSettings {
	return FuseSettings{
		Tolerance:  DefaultFuseTolerance,
		Tolerances: geom.Vec{X: DefaultFuseTolerance, Y: DefaultFuseTolerance, Z: DefaultFuseTolerance},
	}
}

// IsWithinTolerance reports whether a and b fuse. Component-wise mode tests
// every axis against its own radius; otherwise the euclidean distance is
// compared to Tolerance.
func (s FuseSettings) IsWithinTolerance(a, b geom.Vec) bool {
	if s.ComponentWise {
		d := b.Sub(a)
		return math.Abs(d.X) <= s.Tolerances.X &&
			math.Abs(d.Y) <= s.Tolerances.Y &&
			math.Abs(d.Z) <= s.Tolerances.Z
	}
	return geom.DistSquared(a, b) <= s.Tolerance*s.Tolerance
}

// Extents returns the half-size of the box that contains every position
// fusing with the box center.
func (s FuseSettings) Extents() geom.Vec {
	if s.ComponentWise {
		return s.Tolerances
	}
	return geom.Vec{X: s.Tolerance, Y: s.Tolerance, Z: s.Tolerance}
}

// MaxTolerance returns the largest radius on any axis.
func (s FuseSettings) MaxTolerance() float64 {
	if s.ComponentWise {
		return math.Max(s.Tolerances.X, math.Max(s.Tolerances.Y, s.Tolerances.Z))
	}
	return s.Tolerance
}
