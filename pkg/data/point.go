// Package data defines the point containers the graph pipeline reads from
// and writes to: points with stable metadata keys, per-dataset typed
// attributes, collections of datasets, and compound lists that record which
// original points were merged together.
package data

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/filament/pkg/geom"
)

// Point is a single element of a dataset.
type Point struct {
	Position geom.Vec `yaml:"position"`
	Seed     int32    `yaml:"seed"`
	Key      int64    `yaml:"key"`
}

// keyCounter backs NewKey. Keys start at 1 so zero means "unassigned".
var keyCounter int64

// NewKey returns a process-wide unique metadata key.
func NewKey() int64 {
	return atomic.AddInt64(&keyCounter, 1)
}

// PointIO is one dataset: the input points it was created from, the output
// points written by processing, and named per-point attributes on the output.
type PointIO struct {
	IOIndex int
	Tags    []string
	In      []Point
	Out     []Point

	mu    sync.RWMutex
	attrs map[string]column
}

// NewPointIO creates a dataset whose input is in.
func NewPointIO(ioIndex int, in []Point) *PointIO {
	return &PointIO{IOIndex: ioIndex, In: in}
}

// NumIn returns the number of input points.
func (io *PointIO) NumIn() int { return len(io.In) }

// NumOut returns the number of output points.
func (io *PointIO) NumOut() int { return len(io.Out) }

// Positions returns the input positions in order.
func (io *PointIO) Positions() []geom.Vec {
	out := make([]geom.Vec, len(io.In))
	for i, p := range io.In {
		out[i] = p.Position
	}
	return out
}

// InitOut sizes the output to n zero points and clears previous attributes.
func (io *PointIO) InitOut(n int) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.Out = make([]Point, n)
	io.attrs = nil
}

// HasTag reports whether tag is attached to the dataset.
func (io *PointIO) HasTag(tag string) bool {
	for _, t := range io.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag attaches tag once.
func (io *PointIO) AddTag(tag string) {
	if !io.HasTag(tag) {
		io.Tags = append(io.Tags, tag)
	}
}

// Forward returns a new dataset whose input is this dataset's output,
// carrying tags and attributes along. Used to chain processing steps.
func (io *PointIO) Forward(ioIndex int) *PointIO {
	io.mu.RLock()
	defer io.mu.RUnlock()
	next := &PointIO{
		IOIndex: ioIndex,
		Tags:    append([]string(nil), io.Tags...),
		In:      append([]Point(nil), io.Out...),
	}
	if len(io.attrs) > 0 {
		next.attrs = make(map[string]column, len(io.attrs))
		for k, v := range io.attrs {
			next.attrs[k] = v
		}
	}
	return next
}

// Select returns a new dataset whose input is this dataset's output and
// whose output keeps only the given output indices, with every attribute
// reduced the same way. Indices must be in range.
func (io *PointIO) Select(ioIndex int, keep []int) *PointIO {
	io.mu.RLock()
	defer io.mu.RUnlock()
	next := &PointIO{
		IOIndex: ioIndex,
		Tags:    append([]string(nil), io.Tags...),
		In:      append([]Point(nil), io.Out...),
		Out:     make([]Point, len(keep)),
	}
	for i, k := range keep {
		next.Out[i] = io.Out[k]
	}
	if len(io.attrs) > 0 {
		next.attrs = make(map[string]column, len(io.attrs))
		for name, c := range io.attrs {
			next.attrs[name] = c.subset(keep)
		}
	}
	return next
}

// Collection is an ordered set of datasets. Emplace is safe for concurrent
// use.
type Collection struct {
	mu    sync.Mutex
	Pairs []*PointIO
}

// NewCollection wraps existing datasets, renumbering their IO indices.
func NewCollection(ios ...*PointIO) *Collection {
	c := &Collection{}
	for _, io := range ios {
		c.Add(io)
	}
	return c
}

// Emplace creates, appends and returns a new dataset with input in.
func (c *Collection) Emplace(in []Point) *PointIO {
	c.mu.Lock()
	defer c.mu.Unlock()
	io := NewPointIO(len(c.Pairs), in)
	c.Pairs = append(c.Pairs, io)
	return io
}

// Add appends io and assigns its IO index.
func (c *Collection) Add(io *PointIO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.IOIndex = len(c.Pairs)
	c.Pairs = append(c.Pairs, io)
}

// Len returns the number of datasets.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Pairs)
}

// At returns the dataset at i, or nil when out of range.
func (c *Collection) At(i int) *PointIO {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.Pairs) {
		return nil
	}
	return c.Pairs[i]
}

// Source returns the input point at (ioIndex, pointIndex).
func (c *Collection) Source(ioIndex, pointIndex int) (Point, bool) {
	io := c.At(ioIndex)
	if io == nil || pointIndex < 0 || pointIndex >= len(io.In) {
		return Point{}, false
	}
	return io.In[pointIndex], true
}

// FromPositions builds input points at the given positions.
func FromPositions(ps ...geom.Vec) []Point {
	out := make([]Point, len(ps))
	for i, p := range ps {
		out[i] = Point{Position: p}
	}
	return out
}
