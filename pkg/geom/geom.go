// Package geom holds the small amount of vector and box math the graph
// builder needs. It works directly on sdfx vectors and boxes so positions
// and bounds share one representation across every package.
package geom

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Epsilon is the smallest extent used for degenerate boxes and parametric
// comparisons.
const Epsilon = 1e-9

// Vec is shorthand for the sdfx 3D vector.
type Vec = v3.Vec

// Box is shorthand for the sdfx 3D axis-aligned box.
type Box = sdf.Box3

// PointBox returns a zero-volume box at p.
func PointBox(p Vec) Box {
	return Box{Min: p, Max: p}
}

// SegmentBox returns the bounding box of segment ab.
func SegmentBox(a, b Vec) Box {
	return Box{Min: a.Min(b), Max: a.Max(b)}
}

// Expand pads a box by r on every axis.
func Expand(bb Box, r float64) Box {
	return ExpandBy(bb, Vec{X: r, Y: r, Z: r})
}

// ExpandBy pads a box by a per-axis extent.
func ExpandBy(bb Box, e Vec) Box {
	return Box{Min: bb.Min.Sub(e), Max: bb.Max.Add(e)}
}

// Overlaps reports whether two boxes intersect, borders included.
func Overlaps(a, b Box) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

// Inside reports whether p lies in bb, borders included.
func Inside(bb Box, p Vec) bool {
	return p.X >= bb.Min.X && p.X <= bb.Max.X &&
		p.Y >= bb.Min.Y && p.Y <= bb.Max.Y &&
		p.Z >= bb.Min.Z && p.Z <= bb.Max.Z
}

// Lerp interpolates from a to b by alpha.
func Lerp(a, b Vec, alpha float64) Vec {
	return a.Add(b.Sub(a).MulScalar(alpha))
}

// DistSquared returns |a-b|^2.
func DistSquared(a, b Vec) float64 {
	return b.Sub(a).Length2()
}

// Dist returns |a-b|.
func Dist(a, b Vec) float64 {
	return math.Sqrt(DistSquared(a, b))
}

// ClosestOnSegment returns the point of segment ab closest to p and its
// parametric time along the segment, clamped to [0,1]. A zero-length
// segment returns a and t=0.
func ClosestOnSegment(p, a, b Vec) (Vec, float64) {
	ab := b.Sub(a)
	l2 := ab.Length2()
	if l2 < Epsilon*Epsilon {
		return a, 0
	}
	t := p.Sub(a).Dot(ab) / l2
	t = clamp01(t)
	return a.Add(ab.MulScalar(t)), t
}

// SegmentApproach holds the closest approach between two segments.
type SegmentApproach struct {
	OnA   Vec     // closest point on the first segment
	OnB   Vec     // closest point on the second segment
	TimeA float64 // parametric time on the first segment
	TimeB float64 // parametric time on the second segment
}

// Center is the midpoint between the two closest points.
func (s SegmentApproach) Center() Vec {
	return Lerp(s.OnA, s.OnB, 0.5)
}

// DistSquared is the squared gap between the two closest points.
func (s SegmentApproach) DistSquared() float64 {
	return DistSquared(s.OnA, s.OnB)
}

// ClosestSegments computes the closest points between segments a0a1 and
// b0b1 (Ericson, Real-Time Collision Detection 5.1.9). Degenerate segments
// collapse to their first point. Thresholds scale with segment length.
func ClosestSegments(a0, a1, b0, b1 Vec) SegmentApproach {
	d1 := a1.Sub(a0)
	d2 := b1.Sub(b0)
	r := a0.Sub(b0)
	a := d1.Length2()
	e := d2.Length2()
	f := d2.Dot(r)
	eps2 := Epsilon * Epsilon

	var s, t float64
	switch {
	case a <= eps2 && e <= eps2:
		s, t = 0, 0
	case a <= eps2:
		s = 0
		t = clamp01(f / e)
	default:
		c := d1.Dot(r)
		if e <= eps2 {
			t = 0
			s = clamp01(-c / a)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			// denom is a*e*sin^2 of the angle between the segments.
			if denom > Epsilon*a*e {
				s = clamp01((b*f - c*e) / denom)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp01(-c / a)
			} else if t > 1 {
				t = 1
				s = clamp01((b - c) / a)
			}
		}
	}

	return SegmentApproach{
		OnA:   a0.Add(d1.MulScalar(s)),
		OnB:   b0.Add(d2.MulScalar(t)),
		TimeA: s,
		TimeB: t,
	}
}

// StrictlyInside reports whether t lies in the open interval (0,1), with a
// small margin so endpoint hits are not treated as interior.
func StrictlyInside(t float64) bool {
	return t > Epsilon && t < 1-Epsilon
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
