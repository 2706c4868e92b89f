package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/geom"
	"github.com/chazu/filament/pkg/graph"
	"github.com/chazu/filament/pkg/intersect"
	"github.com/chazu/filament/pkg/pipeline"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms scene source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: point-edge -> point_edge
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a position.
type sexpVec3 struct {
	vec geom.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpPath refers to a path declared in the scene.
type sexpPath struct {
	io     int
	points int
	closed bool
}

func (p *sexpPath) SexpString(ps *zygo.PrintState) string {
	if p.closed {
		return fmt.Sprintf("(path #%d %d points :closed)", p.io, p.points)
	}
	return fmt.Sprintf("(path #%d %d points)", p.io, p.points)
}
func (p *sexpPath) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		if i+1 < len(args) {
			if _, next := isKW(args[i+1]); !next {
				result.kw[name] = args[i+1]
				i += 2
				continue
			}
		}
		// A keyword followed by another keyword or nothing is a flag.
		result.kw[name] = zygo.SexpNull
		i++
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts a non-negative integer.
func toInt(s zygo.Sexp) (int, error) {
	v, ok := s.(*zygo.SexpInt)
	if !ok {
		return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
	}
	if v.Val < 0 {
		return 0, fmt.Errorf("expected non-negative integer, got %d", v.Val)
	}
	return int(v.Val), nil
}

// toBool extracts a boolean. A bare flag keyword (SexpNull) counts as true.
func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return true, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a position from a sexpVec3.
func toVec3(s zygo.Sexp) (geom.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return geom.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toPoints flattens vec3 values and lists of vec3 values into positions.
func toPoints(args []zygo.Sexp) ([]geom.Vec, error) {
	var out []geom.Vec
	for i, a := range args {
		if v, ok := a.(*sexpVec3); ok {
			out = append(out, v.vec)
			continue
		}
		items, err := sexpListToSlice(a)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		nested, err := toPoints(items)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// intersectionKW reads the keyword arguments shared by point-edge and
// edge-edge.
func intersectionKW(pa kwArgs, enabled *bool, tolerance *float64, self *bool) error {
	if v, ok := pa.kw["enabled"]; ok {
		b, err := toBool(v)
		if err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
		*enabled = b
	}
	if v, ok := pa.kw["tolerance"]; ok {
		f, err := toFloat64(v)
		if err != nil {
			return fmt.Errorf("tolerance: %w", err)
		}
		if f < 0 {
			return fmt.Errorf("tolerance: must be non-negative, got %g", f)
		}
		*tolerance = f
	}
	if v, ok := pa.kw["self-intersection"]; ok {
		b, err := toBool(v)
		if err != nil {
			return fmt.Errorf("self-intersection: %w", err)
		}
		*self = b
	}
	return nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the scene builtins into a zygomys environment.
// The builtins record paths and setting overrides on s during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *Scene) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		z, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}

		return &sexpVec3{vec: geom.Vec{X: x, Y: y, Z: z}}, nil
	})

	// -----------------------------------------------------------------------
	// (path (vec3 0 0 0) (vec3 10 0 0) ... :closed true)
	//
	// Points may also be passed as lists of vec3 values.
	// -----------------------------------------------------------------------
	env.AddFunction("path", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		pts, err := toPoints(pa.positional)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("path: %w", err)
		}
		if len(pts) == 0 {
			return zygo.SexpNull, fmt.Errorf("path requires at least one point")
		}

		closed := false
		if v, ok := pa.kw["closed"]; ok {
			if closed, err = toBool(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("path: closed: %w", err)
			}
		}

		io := s.Paths.Emplace(data.FromPositions(pts...))
		if closed {
			io.AddTag(pipeline.TagClosed)
		}
		return &sexpPath{io: io.IOIndex, points: len(pts), closed: closed}, nil
	})

	// -----------------------------------------------------------------------
	// (fuse :tolerance 0.01)
	// (fuse :component-wise true :tolerances (vec3 0.01 0.01 1))
	// -----------------------------------------------------------------------
	env.AddFunction("fuse", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		fs := graph.DefaultFuseSettings()
		if s.Fuse != nil {
			fs = *s.Fuse
		}

		if v, ok := pa.kw["tolerance"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("fuse: tolerance: %w", err)
			}
			if f < 0 {
				return zygo.SexpNull, fmt.Errorf("fuse: tolerance: must be non-negative, got %g", f)
			}
			fs.Tolerance = f
		}
		if v, ok := pa.kw["component-wise"]; ok {
			b, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("fuse: component-wise: %w", err)
			}
			fs.ComponentWise = b
		}
		if v, ok := pa.kw["tolerances"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("fuse: tolerances: %w", err)
			}
			fs.Tolerances = vec
		}

		s.Fuse = &fs
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (point-edge :tolerance 0.001 :self-intersection false)
	//
	// Registered as "point_edge"; the preprocessor rewrites the hyphen.
	// -----------------------------------------------------------------------
	env.AddFunction("point_edge", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pe := intersect.DefaultPointEdgeSettings()
		if s.PointEdge != nil {
			pe = *s.PointEdge
		}
		if err := intersectionKW(parseArgs(args), &pe.Enabled, &pe.Tolerance, &pe.EnableSelfIntersection); err != nil {
			return zygo.SexpNull, fmt.Errorf("point-edge: %w", err)
		}
		s.PointEdge = &pe
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (edge-edge :tolerance 0.001 :self-intersection false)
	// -----------------------------------------------------------------------
	env.AddFunction("edge_edge", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		ee := intersect.DefaultEdgeEdgeSettings()
		if s.EdgeEdge != nil {
			ee = *s.EdgeEdge
		}
		if err := intersectionKW(parseArgs(args), &ee.Enabled, &ee.Tolerance, &ee.EnableSelfIntersection); err != nil {
			return zygo.SexpNull, fmt.Errorf("edge-edge: %w", err)
		}
		s.EdgeEdge = &ee
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (clusters :min 3 :max 500)
	// -----------------------------------------------------------------------
	env.AddFunction("clusters", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if v, ok := pa.kw["min"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("clusters: min: %w", err)
			}
			s.MinClusterSize = &n
		}
		if v, ok := pa.kw["max"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("clusters: max: %w", err)
			}
			s.MaxClusterSize = &n
		}
		if s.MinClusterSize != nil && s.MaxClusterSize != nil && *s.MinClusterSize > *s.MaxClusterSize {
			return zygo.SexpNull, fmt.Errorf("clusters: min %d exceeds max %d", *s.MinClusterSize, *s.MaxClusterSize)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (pipeline :workers 4 :refine true :closed-loop false :concurrent true)
	// -----------------------------------------------------------------------
	env.AddFunction("pipeline", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if v, ok := pa.kw["workers"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("pipeline: workers: %w", err)
			}
			s.Workers = &n
		}
		for kw, dst := range map[string]**bool{
			"refine":      &s.Refine,
			"closed-loop": &s.ClosedLoop,
			"concurrent":  &s.ConcurrentIngestion,
		} {
			v, ok := pa.kw[kw]
			if !ok {
				continue
			}
			b, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("pipeline: %s: %w", kw, err)
			}
			*dst = &b
		}
		return zygo.SexpNull, nil
	})
}
