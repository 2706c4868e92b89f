package graph

import "github.com/chazu/filament/pkg/data"

// Attribute names written on cluster outputs.
const (
	AttrEdgeStart = "EdgeStart" // int64 key of the start vertex
	AttrEdgeEnd   = "EdgeEnd"   // int64 key of the end vertex
	AttrVtxIndex  = "VtxIndex"  // int32 graph node index of the vertex
	AttrEdgesNum  = "EdgesNum"  // int32 number of exported edges

	// TagClusterPair prefixes the tag linking a vertex dataset to its edge
	// datasets.
	TagClusterPair = "ClusterPair"
)

// IsPointDataVtxReady reports whether io carries vertex attributes.
func IsPointDataVtxReady(io *data.PointIO) bool {
	if _, ok := data.ReadAttribute[int32](io, AttrVtxIndex); !ok {
		return false
	}
	_, ok := data.ReadAttribute[int32](io, AttrEdgesNum)
	return ok
}

// IsPointDataEdgeReady reports whether io carries edge linkage attributes.
func IsPointDataEdgeReady(io *data.PointIO) bool {
	if _, ok := data.ReadAttribute[int64](io, AttrEdgeStart); !ok {
		return false
	}
	_, ok := data.ReadAttribute[int64](io, AttrEdgeEnd)
	return ok
}

// GetRemappedIndices maps the metadata key of every output vertex of io to
// its output index.
func GetRemappedIndices(io *data.PointIO) (map[int64]int, bool) {
	if io == nil {
		return nil, false
	}
	out := make(map[int64]int, io.NumOut())
	for i, p := range io.Out {
		if p.Key == 0 {
			return nil, false
		}
		out[p.Key] = i
	}
	return out, true
}

// GetReducedVtxIndices resolves the EdgeStart/EdgeEnd keys of an edge
// dataset into vertex indices using a map from GetRemappedIndices. Edges
// whose endpoints are unknown are dropped; mismatched start and end counts
// fail the whole read.
func GetReducedVtxIndices(edges *data.PointIO, nodeIndices map[int64]int) ([]IndexedEdge, bool) {
	starts, ok := data.ReadAttribute[int64](edges, AttrEdgeStart)
	if !ok {
		return nil, false
	}
	ends, ok := data.ReadAttribute[int64](edges, AttrEdgeEnd)
	if !ok || len(starts) != len(ends) {
		return nil, false
	}

	out := make([]IndexedEdge, 0, len(starts))
	for i := range starts {
		s, okS := nodeIndices[starts[i]]
		e, okE := nodeIndices[ends[i]]
		if !okS || !okE || s == e {
			continue
		}
		out = append(out, IndexedEdge{
			EdgeIndex:  len(out),
			Start:      s,
			End:        e,
			Valid:      true,
			IOIndex:    edges.IOIndex,
			PointIndex: i,
		})
	}
	return out, true
}
