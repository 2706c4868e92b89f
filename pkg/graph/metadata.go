package graph

import "fmt"

// IntersectionType records how a node or edge came to exist.
type IntersectionType int

const (
	IntersectionUnknown   IntersectionType = iota // original vertex or edge
	IntersectionPointEdge                         // point lying on an edge
	IntersectionEdgeEdge                          // crossing of two edges
)

func (t IntersectionType) String() string {
	switch t {
	case IntersectionUnknown:
		return "unknown"
	case IntersectionPointEdge:
		return "point-edge"
	case IntersectionEdgeEdge:
		return "edge-edge"
	default:
		return fmt.Sprintf("IntersectionType(%d)", int(t))
	}
}

// NodeMetadata is the per-node side table entry.
type NodeMetadata struct {
	NodeIndex    int
	Type         IntersectionType
	Compounded   bool
	CompoundSize int
}

// IsIntersector reports whether the node splits an edge it lies on.
func (m *NodeMetadata) IsIntersector() bool { return m.Type == IntersectionPointEdge }

// IsCrossing reports whether the node was created at an edge crossing.
func (m *NodeMetadata) IsCrossing() bool { return m.Type == IntersectionEdgeEdge }

// EdgeMetadata is the per-edge side table entry. ParentIndex is the edge
// this one was split from, or -1.
type EdgeMetadata struct {
	EdgeIndex   int
	ParentIndex int
	Type        IntersectionType
	CrossingA   bool // split as the first edge of a crossing
	CrossingB   bool // split as the second edge of a crossing
}

// GetOrCreateNodeMetadataUnsafe returns the entry for node, creating it.
// A new entry stands for a single point.
func (g *Graph) GetOrCreateNodeMetadataUnsafe(node int) *NodeMetadata {
	if md, ok := g.nodeMetadata.Get(node); ok {
		return md
	}
	md := &NodeMetadata{NodeIndex: node, CompoundSize: 1}
	g.nodeMetadata.Set(node, md)
	return md
}

// GetOrCreateNodeMetadata is the locked variant.
func (g *Graph) GetOrCreateNodeMetadata(node int) *NodeMetadata {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.GetOrCreateNodeMetadataUnsafe(node)
}

// FindNodeMetadata returns the entry for node if one exists.
func (g *Graph) FindNodeMetadata(node int) (*NodeMetadata, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodeMetadata.Get(node)
}

// GetOrCreateEdgeMetadataUnsafe returns the entry for edge, creating it
// with the given parent.
func (g *Graph) GetOrCreateEdgeMetadataUnsafe(edge, parent int) *EdgeMetadata {
	if md, ok := g.edgeMetadata.Get(edge); ok {
		return md
	}
	md := &EdgeMetadata{EdgeIndex: edge, ParentIndex: parent}
	g.edgeMetadata.Set(edge, md)
	return md
}

// FindEdgeMetadata returns the entry for edge if one exists.
func (g *Graph) FindEdgeMetadata(edge int) (*EdgeMetadata, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findEdgeMetadataUnsafe(edge)
}

func (g *Graph) findEdgeMetadataUnsafe(edge int) (*EdgeMetadata, bool) {
	return g.edgeMetadata.Get(edge)
}

// HasMetadata reports whether any node or edge metadata was recorded.
func (g *Graph) HasMetadata() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodeMetadata.Len() > 0 || g.edgeMetadata.Len() > 0
}

// GetRootIndex follows the parent chain of edge back to the original edge
// it was split from. Edges without metadata are their own root.
func (g *Graph) GetRootIndex(edge int) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.GetRootIndexUnsafe(edge)
}

// GetRootIndexUnsafe is GetRootIndex without locking.
func (g *Graph) GetRootIndexUnsafe(edge int) int {
	current := edge
	// A chain can never be longer than the edge array; the bound guards
	// against a malformed cycle.
	for steps := 0; steps <= len(g.Edges); steps++ {
		md, ok := g.edgeMetadata.Get(current)
		if !ok || md.ParentIndex < 0 || md.ParentIndex == current {
			return current
		}
		current = md.ParentIndex
	}
	return current
}
