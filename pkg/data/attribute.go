package data

// Attribute values are stored per output point. Writers and readers report
// bind failures through a boolean instead of panicking so callers can fall
// back to an empty result.

// column is a typed attribute array.
type column interface {
	subset(keep []int) column
}

type typed[T any] []T

func (c typed[T]) subset(keep []int) column {
	out := make(typed[T], len(keep))
	for i, k := range keep {
		out[i] = c[k]
	}
	return out
}

// WriteAttribute binds values to name on the output points. It fails when
// name is empty or the value count does not match the output size.
func WriteAttribute[T any](io *PointIO, name string, values []T) bool {
	if io == nil || name == "" || len(values) != len(io.Out) {
		return false
	}
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.attrs == nil {
		io.attrs = make(map[string]column)
	}
	io.attrs[name] = typed[T](values)
	return true
}

// ReadAttribute returns the values bound to name. It fails when the
// attribute is missing or was written with a different type.
func ReadAttribute[T any](io *PointIO, name string) ([]T, bool) {
	if io == nil {
		return nil, false
	}
	io.mu.RLock()
	defer io.mu.RUnlock()
	raw, ok := io.attrs[name]
	if !ok {
		return nil, false
	}
	values, ok := raw.(typed[T])
	return []T(values), ok
}

// HasAttribute reports whether name is bound, regardless of type.
func HasAttribute(io *PointIO, name string) bool {
	if io == nil {
		return false
	}
	io.mu.RLock()
	defer io.mu.RUnlock()
	_, ok := io.attrs[name]
	return ok
}

// AttributeNames lists bound attribute names in no particular order.
func AttributeNames(io *PointIO) []string {
	io.mu.RLock()
	defer io.mu.RUnlock()
	names := make([]string, 0, len(io.attrs))
	for k := range io.attrs {
		names = append(names, k)
	}
	return names
}
