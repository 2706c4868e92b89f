// Package spatial provides a bounded-volume index over arbitrary values.
// Callers supply a bounds accessor instead of implementing a trait per
// element type; the index stores the bounds next to the value.
package spatial

import (
	"sync"

	"github.com/chazu/filament/pkg/geom"
	"github.com/dhconnelly/rtreego"
)

const (
	dims        = 3
	minChildren = 25
	maxChildren = 50
)

// BoundsFunc returns the axis-aligned bounds of an element.
type BoundsFunc[T any] func(T) geom.Box

// entry adapts a value to rtreego.Spatial.
type entry[T any] struct {
	value T
	box   geom.Box
	rect  rtreego.Rect
}

func (e *entry[T]) Bounds() rtreego.Rect {
	return e.rect
}

// Index is an R-tree of values. It is safe for concurrent use: queries take
// a read lock, inserts take the write lock.
type Index[T any] struct {
	mu     sync.RWMutex
	tree   *rtreego.Rtree
	bounds BoundsFunc[T]
}

// New creates an empty index using bounds to box each inserted value.
func New[T any](bounds BoundsFunc[T]) *Index[T] {
	return &Index[T]{
		tree:   rtreego.NewTree(dims, minChildren, maxChildren),
		bounds: bounds,
	}
}

// Insert adds v to the index.
func (ix *Index[T]) Insert(v T) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.InsertUnsafe(v)
}

// InsertUnsafe adds v without locking. The caller must hold exclusive
// access to the index.
func (ix *Index[T]) InsertUnsafe(v T) {
	bb := ix.bounds(v)
	ix.tree.Insert(&entry[T]{value: v, box: bb, rect: toRect(bb)})
}

// Len returns the number of indexed values.
func (ix *Index[T]) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree.Size()
}

// Query calls fn for every value whose bounds overlap bb, borders included.
// Iteration stops when fn returns false.
func (ix *Index[T]) Query(bb geom.Box, fn func(T) bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ix.QueryUnsafe(bb, fn)
}

// QueryUnsafe is Query without locking.
func (ix *Index[T]) QueryUnsafe(bb geom.Box, fn func(T) bool) {
	// The tree search is inflated by Epsilon so touching boxes are found;
	// the exact test below restores closed-interval semantics.
	hits := ix.tree.SearchIntersect(toRect(geom.Expand(bb, geom.Epsilon)))
	for _, h := range hits {
		e := h.(*entry[T])
		if !geom.Overlaps(e.box, bb) {
			continue
		}
		if !fn(e.value) {
			return
		}
	}
}

// Collect returns every value overlapping bb.
func (ix *Index[T]) Collect(bb geom.Box) []T {
	var out []T
	ix.Query(bb, func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

// toRect converts a box into an rtreego rectangle. rtreego rejects zero
// lengths, so degenerate axes get a minimal extent.
func toRect(bb geom.Box) rtreego.Rect {
	p := rtreego.Point{bb.Min.X, bb.Min.Y, bb.Min.Z}
	lengths := []float64{
		extent(bb.Max.X - bb.Min.X),
		extent(bb.Max.Y - bb.Min.Y),
		extent(bb.Max.Z - bb.Min.Z),
	}
	r, err := rtreego.NewRect(p, lengths)
	if err != nil {
		// Only reachable with NaN coordinates; fall back to a unit cell so
		// the entry still lands in the tree.
		r, _ = rtreego.NewRect(p, []float64{geom.Epsilon, geom.Epsilon, geom.Epsilon})
	}
	return r
}

func extent(l float64) float64 {
	if l < geom.Epsilon {
		return geom.Epsilon
	}
	return l
}
