package graph

import "fmt"

// ValidationSeverity indicates whether a finding breaks a graph invariant
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // invariant violated
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding. Edge and Node are
// -1 when the finding is not about a specific entity.
type ValidationError struct {
	Edge     int
	Node     int
	Message  string
	Severity ValidationSeverity
}

func (e ValidationError) Error() string {
	switch {
	case e.Edge >= 0:
		return fmt.Sprintf("[%s] edge %d: %s", e.Severity, e.Edge, e.Message)
	case e.Node >= 0:
		return fmt.Sprintf("[%s] node %d: %s", e.Severity, e.Node, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
}

// Validate checks the structural invariants of the graph: valid edges link
// valid, in-range nodes; no two valid edges share an unordered endpoint
// pair; and, once sub-graphs are built, every valid edge belongs to exactly
// one sub-graph and no node appears in two. The graph is not mutated.
func (g *Graph) Validate() []ValidationError {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []ValidationError
	errs = append(errs, g.validateEdges()...)
	if len(g.SubGraphs) > 0 {
		errs = append(errs, g.validatePartition()...)
	}
	return errs
}

func (g *Graph) validateEdges() []ValidationError {
	var errs []ValidationError
	seen := make(map[uint64]int)

	for i, e := range g.Edges {
		if !e.Valid {
			continue
		}
		if e.Start < 0 || e.Start >= len(g.Nodes) || e.End < 0 || e.End >= len(g.Nodes) {
			errs = append(errs, ValidationError{
				Edge:     i,
				Node:     -1,
				Message:  fmt.Sprintf("endpoint out of range (%d, %d)", e.Start, e.End),
				Severity: SeverityError,
			})
			continue
		}
		if !g.Nodes[e.Start].Valid || !g.Nodes[e.End].Valid {
			errs = append(errs, ValidationError{
				Edge:     i,
				Node:     -1,
				Message:  fmt.Sprintf("references invalid node (%d, %d)", e.Start, e.End),
				Severity: SeverityError,
			})
		}
		if e.Start == e.End {
			errs = append(errs, ValidationError{
				Edge:     i,
				Node:     e.Start,
				Message:  "degenerate edge",
				Severity: SeverityError,
			})
		}
		if prev, dup := seen[e.Key()]; dup {
			errs = append(errs, ValidationError{
				Edge:     i,
				Node:     -1,
				Message:  fmt.Sprintf("duplicates edge %d", prev),
				Severity: SeverityError,
			})
		} else {
			seen[e.Key()] = i
		}
	}
	return errs
}

func (g *Graph) validatePartition() []ValidationError {
	var errs []ValidationError
	edgeOwner := make(map[int]int)
	nodeOwner := make(map[int]int)

	for si, sg := range g.SubGraphs {
		sg.Edges.Scan(func(ei int) bool {
			if prev, ok := edgeOwner[ei]; ok {
				errs = append(errs, ValidationError{
					Edge:     ei,
					Node:     -1,
					Message:  fmt.Sprintf("in sub-graphs %d and %d", prev, si),
					Severity: SeverityError,
				})
			}
			edgeOwner[ei] = si
			return true
		})
		sg.Nodes.Scan(func(n int) bool {
			if prev, ok := nodeOwner[n]; ok {
				errs = append(errs, ValidationError{
					Edge:     -1,
					Node:     n,
					Message:  fmt.Sprintf("in sub-graphs %d and %d", prev, si),
					Severity: SeverityError,
				})
			}
			nodeOwner[n] = si
			return true
		})
	}

	for i, e := range g.Edges {
		if !e.Valid {
			continue
		}
		if _, ok := edgeOwner[i]; !ok {
			errs = append(errs, ValidationError{
				Edge:     i,
				Node:     -1,
				Message:  "valid edge outside every sub-graph",
				Severity: SeverityError,
			})
		}
	}
	return errs
}
