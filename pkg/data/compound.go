package data

import (
	"sync"

	"github.com/tidwall/btree"
)

// H64 packs an ordered (a, b) pair into one key.
func H64(a, b uint32) uint64 {
	return uint64(a)<<32 | uint64(b)
}

// H64Split reverses H64.
func H64Split(h uint64) (uint32, uint32) {
	return uint32(h >> 32), uint32(h)
}

// H64U packs an unordered pair: H64U(a, b) == H64U(b, a).
func H64U(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return H64(a, b)
}

// IdxCompound records the original (IOIndex, PointIndex) pairs merged into
// one canonical entity.
type IdxCompound struct {
	pairs     btree.Set[uint64]
	ioIndices btree.Set[int]
}

// Add records one original point.
func (c *IdxCompound) Add(ioIndex, pointIndex int) {
	c.pairs.Insert(H64(uint32(ioIndex), uint32(pointIndex)))
	c.ioIndices.Insert(ioIndex)
}

// Len returns the number of distinct original points.
func (c *IdxCompound) Len() int { return c.pairs.Len() }

// Pairs calls fn for each (IOIndex, PointIndex) pair in order.
func (c *IdxCompound) Pairs(fn func(ioIndex, pointIndex int) bool) {
	c.pairs.Scan(func(h uint64) bool {
		io, pt := H64Split(h)
		return fn(int(io), int(pt))
	})
}

// HasIOIndex reports whether any original point came from ioIndex.
func (c *IdxCompound) HasIOIndex(ioIndex int) bool {
	return c.ioIndices.Contains(ioIndex)
}

// IdxCompoundList holds one compound per canonical entity, indexed like the
// entity array it describes.
type IdxCompoundList struct {
	mu        sync.RWMutex
	compounds []*IdxCompound
}

// NewIdxCompoundList creates an empty list.
func NewIdxCompoundList() *IdxCompoundList {
	return &IdxCompoundList{}
}

// New appends an empty compound and returns its index.
func (l *IdxCompoundList) New() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.compounds = append(l.compounds, &IdxCompound{})
	return len(l.compounds) - 1
}

// Add records (ioIndex, pointIndex) into compound i.
func (l *IdxCompoundList) Add(i, ioIndex, pointIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.compounds[i].Add(ioIndex, pointIndex)
}

// Len returns the number of compounds.
func (l *IdxCompoundList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.compounds)
}

// At returns compound i, or nil when out of range.
func (l *IdxCompoundList) At(i int) *IdxCompound {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.compounds) {
		return nil
	}
	return l.compounds[i]
}

// Size returns the number of original points in compound i.
func (l *IdxCompoundList) Size(i int) int {
	c := l.At(i)
	if c == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return c.Len()
}

// IOIndices returns the distinct IO indices of compound i in order.
func (l *IdxCompoundList) IOIndices(i int) []int {
	c := l.At(i)
	if c == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int, 0, c.ioIndices.Len())
	c.ioIndices.Scan(func(io int) bool {
		out = append(out, io)
		return true
	})
	return out
}

// HasIOIndexOverlap reports whether compounds i and j share any IO index.
// Used to recognise an entity intersecting another part of its own source.
func (l *IdxCompoundList) HasIOIndexOverlap(i, j int) bool {
	a, b := l.At(i), l.At(j)
	if a == nil || b == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a.ioIndices.Len() > b.ioIndices.Len() {
		a, b = b, a
	}
	overlap := false
	a.ioIndices.Scan(func(io int) bool {
		if b.ioIndices.Contains(io) {
			overlap = true
			return false
		}
		return true
	})
	return overlap
}

// HasIOIndexOverlapWith is HasIOIndexOverlap across two lists, comparing
// compound i of l with compound j of other.
func (l *IdxCompoundList) HasIOIndexOverlapWith(i int, other *IdxCompoundList, j int) bool {
	if other == l {
		return l.HasIOIndexOverlap(i, j)
	}
	ios := other.IOIndices(j)
	c := l.At(i)
	if c == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, io := range ios {
		if c.HasIOIndex(io) {
			return true
		}
	}
	return false
}
