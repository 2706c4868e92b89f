package spatial

import (
	"sort"
	"sync"
	"testing"

	"github.com/chazu/filament/pkg/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id  int
	pos geom.Vec
}

func pointIndex(items ...item) *Index[item] {
	ix := New(func(it item) geom.Box { return geom.PointBox(it.pos) })
	for _, it := range items {
		ix.Insert(it)
	}
	return ix
}

func ids(items []item) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		out = append(out, it.id)
	}
	sort.Ints(out)
	return out
}

func TestQueryPoints(t *testing.T) {
	ix := pointIndex(
		item{0, geom.Vec{}},
		item{1, geom.Vec{X: 1}},
		item{2, geom.Vec{X: 5, Y: 5}},
		item{3, geom.Vec{X: 1, Y: 1, Z: 1}},
	)
	require.Equal(t, 4, ix.Len())

	got := ix.Collect(geom.Box{Min: geom.Vec{X: -0.5, Y: -0.5, Z: -0.5}, Max: geom.Vec{X: 1, Y: 0.5, Z: 0.5}})
	assert.Equal(t, []int{0, 1}, ids(got))

	got = ix.Collect(geom.Expand(geom.PointBox(geom.Vec{X: 5, Y: 5}), 0.1))
	assert.Equal(t, []int{2}, ids(got))

	assert.Empty(t, ix.Collect(geom.Expand(geom.PointBox(geom.Vec{X: 50}), 1)))
}

func TestQueryTouchingBorder(t *testing.T) {
	ix := pointIndex(item{7, geom.Vec{X: 2}})
	got := ix.Collect(geom.Box{Min: geom.Vec{}, Max: geom.Vec{X: 2}})
	assert.Equal(t, []int{7}, ids(got))
}

func TestQuerySegments(t *testing.T) {
	type seg struct {
		id   int
		a, b geom.Vec
	}
	ix := New(func(s seg) geom.Box { return geom.SegmentBox(s.a, s.b) })
	ix.Insert(seg{0, geom.Vec{}, geom.Vec{X: 10}})
	ix.Insert(seg{1, geom.Vec{X: 5, Y: -5}, geom.Vec{X: 5, Y: 5}})
	ix.Insert(seg{2, geom.Vec{X: 20, Y: 20}, geom.Vec{X: 30, Y: 20}})

	var found []int
	ix.Query(geom.SegmentBox(geom.Vec{X: 5, Y: -5}, geom.Vec{X: 5, Y: 5}), func(s seg) bool {
		found = append(found, s.id)
		return true
	})
	sort.Ints(found)
	assert.Equal(t, []int{0, 1}, found)
}

func TestQueryStopsEarly(t *testing.T) {
	ix := pointIndex(item{0, geom.Vec{}}, item{1, geom.Vec{}}, item{2, geom.Vec{}})
	n := 0
	ix.Query(geom.Expand(geom.PointBox(geom.Vec{}), 1), func(item) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n)
}

func TestConcurrentInsert(t *testing.T) {
	ix := New(func(it item) geom.Box { return geom.PointBox(it.pos) })
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ix.Insert(item{i, geom.Vec{X: float64(i)}})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 64, ix.Len())
	assert.Len(t, ix.Collect(geom.Box{Min: geom.Vec{X: 10}, Max: geom.Vec{X: 19}}), 10)
}
