package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/engine"
	"github.com/chazu/filament/pkg/graph"
	"github.com/chazu/filament/pkg/pipeline"
)

// App evaluates scene scripts or path files and runs the cluster pipeline
// on them.
type App struct {
	engine   *engine.Engine
	settings pipeline.Settings
	logger   *slog.Logger
}

// VertexData is one output vertex.
type VertexData struct {
	Key      int64      `yaml:"key"`
	Position [3]float64 `yaml:"position"`
}

// ClusterData is one connected cluster. Edges hold indices into
// BuildResult.Vertices.
type ClusterData struct {
	Index int      `yaml:"index"`
	Edges [][2]int `yaml:"edges"`
}

// EvalErrorData is a serializable script error or run warning.
type EvalErrorData struct {
	Line    int    `yaml:"line,omitempty"`
	Col     int    `yaml:"col,omitempty"`
	Message string `yaml:"message"`
}

// Stats summarizes what the run did.
type Stats struct {
	Skipped      int   `yaml:"skipped"`
	PointEdge    int   `yaml:"point_edge_splits"`
	EdgeEdge     int   `yaml:"edge_edge_crossings"`
	DroppedEdges int   `yaml:"dropped_edges"`
	TaskFailures int64 `yaml:"task_failures"`
}

// BuildResult is the full output of a build.
type BuildResult struct {
	PairID   string          `yaml:"pair_id,omitempty"`
	Vertices []VertexData    `yaml:"vertices"`
	Clusters []ClusterData   `yaml:"clusters"`
	Stats    Stats           `yaml:"stats"`
	Errors   []EvalErrorData `yaml:"errors,omitempty"`
	Warnings []EvalErrorData `yaml:"warnings,omitempty"`
}

// NewApp creates an App that runs with settings unless a script overrides
// them. opts configure the script engine.
func NewApp(settings pipeline.Settings, logger *slog.Logger, opts ...engine.Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		engine:   engine.NewEngine(opts...),
		settings: settings,
		logger:   logger,
	}
}

func newBuildResult() BuildResult {
	return BuildResult{
		Vertices: []VertexData{},
		Clusters: []ClusterData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}
}

// Evaluate runs a scene script and builds the paths it declares.
func (a *App) Evaluate(ctx context.Context, source string) BuildResult {
	result := newBuildResult()

	scene, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		a.logger.Error("evaluate failed", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}

	settings := a.settings
	scene.Apply(&settings)
	return a.build(ctx, scene.Paths, settings)
}

// Build runs the pipeline over paths with the app settings.
func (a *App) Build(ctx context.Context, paths *data.Collection) BuildResult {
	return a.build(ctx, paths, a.settings)
}

func (a *App) build(ctx context.Context, paths *data.Collection, settings pipeline.Settings) BuildResult {
	result := newBuildResult()
	if paths.Len() == 0 {
		return result
	}

	res := pipeline.New(paths, settings, pipeline.WithLogger(a.logger)).Run(ctx)
	result.PairID = res.PairID
	result.Stats = Stats{
		Skipped:      res.Skipped,
		PointEdge:    res.PointEdge,
		EdgeEdge:     res.EdgeEdge,
		DroppedEdges: res.DroppedEdges,
		TaskFailures: res.TaskFailures,
	}

	switch {
	case res.Cancelled:
		result.Errors = append(result.Errors, EvalErrorData{Message: "build cancelled"})
		return result
	case res.CompileFailed:
		result.Errors = append(result.Errors, EvalErrorData{Message: "graph compilation failed"})
		return result
	}
	if res.Skipped > 0 {
		result.Warnings = append(result.Warnings, EvalErrorData{
			Message: fmt.Sprintf("%d path(s) with fewer than 2 points skipped", res.Skipped),
		})
	}
	if res.TaskFailures > 0 {
		result.Warnings = append(result.Warnings, EvalErrorData{
			Message: fmt.Sprintf("%d task(s) failed", res.TaskFailures),
		})
	}
	if res.Vertices == nil {
		return result
	}

	for _, p := range res.Vertices.Out {
		result.Vertices = append(result.Vertices, VertexData{
			Key:      p.Key,
			Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		})
	}

	remap, ok := graph.GetRemappedIndices(res.Vertices)
	if !ok {
		result.Errors = append(result.Errors, EvalErrorData{Message: "vertices missing metadata keys"})
		return result
	}
	for i := 0; i < res.Clusters.Len(); i++ {
		edges, ok := graph.GetReducedVtxIndices(res.Clusters.At(i), remap)
		if !ok {
			result.Warnings = append(result.Warnings, EvalErrorData{
				Message: fmt.Sprintf("cluster %d has unresolved edge endpoints", i),
			})
			continue
		}
		cd := ClusterData{Index: i, Edges: make([][2]int, len(edges))}
		for j, e := range edges {
			cd.Edges[j] = [2]int{e.Start, e.End}
		}
		result.Clusters = append(result.Clusters, cd)
	}
	return result
}
