// Package pipeline drives path datasets through ingestion, intersection
// resolution and cluster compilation as a cooperative state machine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/graph"
	"github.com/chazu/filament/pkg/intersect"
	"github.com/chazu/filament/pkg/metrics"
	"github.com/chazu/filament/pkg/mt"
	"github.com/chazu/filament/pkg/refine"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("filament.pipeline")

// TagClosed marks an input path whose last point joins back to its first,
// regardless of Settings.ClosedLoop.
const TagClosed = "Closed"

// State is a phase of PathsToEdgeClusters.
type State int

const (
	StateReadyForNextPoints State = iota
	StateProcessingPoints
	StateUpdatingLooseCenters
	StateFindingPointEdge
	StateInsertingPointEdge
	StateFindingEdgeEdge
	StateInsertingEdgeEdge
	StateWritingClusters
	StateWaitingOnWritingClusters
	StateRefining
	StateDone
)

var stateNames = [...]string{
	"ready-for-next-points",
	"processing-points",
	"updating-loose-centers",
	"finding-point-edge",
	"inserting-point-edge",
	"finding-edge-edge",
	"inserting-edge-edge",
	"writing-clusters",
	"waiting-on-writing-clusters",
	"refining",
	"done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Result is what a finished run produced. Vertices is nil and Clusters is
// empty when nothing survived.
type Result struct {
	PairID   string
	Vertices *data.PointIO
	Clusters *data.Collection

	Skipped          int // input datasets rejected before ingestion
	PointEdge        int // edges split by point-edge resolution
	EdgeEdge         int // crossing nodes created
	DroppedEdges     int // edges removed by refinement
	ValidationErrors int // invariant violations in the compiled graph
	TaskFailures     int64
	Cancelled        bool
	CompileFailed    bool
}

// Option customizes a PathsToEdgeClusters.
type Option func(*PathsToEdgeClusters)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *PathsToEdgeClusters) { p.logger = l }
}

// WithManager runs tasks on an existing manager instead of creating one on
// the first Execute.
func WithManager(m *mt.Manager) Option {
	return func(p *PathsToEdgeClusters) { p.mgr = m }
}

// PathsToEdgeClusters turns a collection of paths into one vertex dataset
// and one edge dataset per connected cluster.
//
// Execute advances at most one phase per call and never blocks on task
// completion: a phase that scheduled work only moves on once the manager
// reports every task done.
type PathsToEdgeClusters struct {
	Settings Settings
	Inputs   *data.Collection

	state  State
	mgr    *mt.Manager
	logger *slog.Logger

	valid   []*data.PointIO
	loose   *graph.LooseGraph
	builder *graph.Builder
	pe      *intersect.PointEdgeIntersections
	ee      *intersect.EdgeEdgeIntersections
	refined []*data.PointIO
	dropped []int
	result  Result

	ctx        context.Context
	span       trace.Span
	phaseStart time.Time
}

// New creates a pipeline over inputs. Tolerances in settings are clamped so
// intersection passes never act inside the fuse radius.
func New(inputs *data.Collection, settings Settings, opts ...Option) *PathsToEdgeClusters {
	p := &PathsToEdgeClusters{
		Settings: settings.safe(),
		Inputs:   inputs,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.Inputs == nil {
		p.Inputs = &data.Collection{}
	}
	p.result.Clusters = &data.Collection{}
	return p
}

// State returns the current phase.
func (p *PathsToEdgeClusters) State() State { return p.state }

// Result returns the run output. It is only complete once Execute has
// returned true.
func (p *PathsToEdgeClusters) Result() Result { return p.result }

// Run executes to completion, yielding between phases until ctx is done.
func (p *PathsToEdgeClusters) Run(ctx context.Context) Result {
	for !p.Execute(ctx) {
		if p.mgr != nil && !p.mgr.IsAsyncWorkComplete() {
			select {
			case <-ctx.Done():
			case <-time.After(100 * time.Microsecond):
			}
		}
	}
	return p.result
}

// Execute advances the state machine and reports whether the run is done.
func (p *PathsToEdgeClusters) Execute(ctx context.Context) bool {
	if p.state == StateDone {
		return true
	}
	if err := ctx.Err(); err != nil {
		p.cancel(err)
		return true
	}
	if p.mgr != nil && !p.mgr.IsAsyncWorkComplete() {
		return false
	}
	if p.mgr != nil {
		p.collectFailures()
	}

	switch p.state {
	case StateReadyForNextPoints:
		p.boot(ctx)
	case StateProcessingPoints:
		p.updateCenters()
	case StateUpdatingLooseCenters:
		p.compileLoose()
	case StateFindingPointEdge:
		p.enter(StateInsertingPointEdge)
	case StateInsertingPointEdge:
		p.result.PointEdge = p.pe.Insert()
		metrics.Intersections.WithLabelValues(graph.IntersectionPointEdge.String()).Add(float64(p.result.PointEdge))
		p.findEdgeEdge()
	case StateFindingEdgeEdge:
		p.enter(StateInsertingEdgeEdge)
	case StateInsertingEdgeEdge:
		p.result.EdgeEdge = p.ee.Insert()
		metrics.Intersections.WithLabelValues(graph.IntersectionEdgeEdge.String()).Add(float64(p.result.EdgeEdge))
		p.writeClusters()
	case StateWritingClusters, StateWaitingOnWritingClusters:
		p.output()
	case StateRefining:
		p.collectRefined()
	}
	return p.state == StateDone
}

func (p *PathsToEdgeClusters) boot(ctx context.Context) {
	p.ctx = ctx
	if p.mgr == nil {
		p.mgr = mt.NewManager(ctx, p.Settings.Workers, p.logger)
	}

	for _, io := range p.Inputs.Pairs {
		if io.NumIn() < 2 {
			p.result.Skipped++
			p.logger.Warn("skipping dataset with fewer than two points",
				slog.Int("io", io.IOIndex),
				slog.Int("points", io.NumIn()))
			continue
		}
		p.valid = append(p.valid, io)
	}
	metrics.InputsSkipped.Add(float64(p.result.Skipped))
	if len(p.valid) == 0 {
		p.logger.Warn("no valid input paths")
		p.finish("empty")
		return
	}

	p.enter(StateProcessingPoints)
	p.loose = graph.NewLooseGraph(p.Settings.Fuse)
	if !p.Settings.ConcurrentIngestion {
		for _, io := range p.valid {
			p.loose.InsertPath(io, p.closed(io))
		}
		return
	}
	for _, io := range p.valid {
		p.mgr.Start("ingest", func(context.Context) bool {
			return p.loose.InsertPath(io, p.closed(io))
		})
	}
}

func (p *PathsToEdgeClusters) closed(io *data.PointIO) bool {
	return p.Settings.ClosedLoop || io.HasTag(TagClosed)
}

func (p *PathsToEdgeClusters) updateCenters() {
	p.enter(StateUpdatingLooseCenters)
	p.mgr.StartRanges("loose-centers", p.loose.NumNodes(), 0, func(_ context.Context, start, count int) bool {
		for i := start; i < start+count; i++ {
			p.loose.UpdateCenter(i, p.Inputs)
		}
		return true
	})
}

func (p *PathsToEdgeClusters) compileLoose() {
	vtx := data.NewPointIO(0, p.loose.Consolidate())
	p.builder = graph.NewBuilder(vtx, p.Inputs, p.Settings.Builder, p.loose.NumEdges(), p.logger)
	p.builder.Metadata = p.Settings.Metadata
	p.builder.Graph.InsertEdges(p.loose.GetUniqueEdges())
	p.loose.WriteMetadata(p.builder.Graph)
	p.result.PairID = p.builder.PairID

	p.logger.Debug("loose graph consolidated",
		slog.Int("nodes", p.loose.NumNodes()),
		slog.Int("edges", p.loose.NumEdges()))

	if !p.Settings.PointEdge.Enabled {
		p.findEdgeEdge()
		return
	}
	p.enter(StateFindingPointEdge)
	p.pe = intersect.NewPointEdgeIntersections(p.builder, p.loose.PointsCompounds, p.loose.EdgesCompounds, p.Settings.PointEdge, p.logger)
	p.pe.FindIntersections(p.mgr)
}

func (p *PathsToEdgeClusters) findEdgeEdge() {
	if !p.Settings.EdgeEdge.Enabled {
		p.writeClusters()
		return
	}
	p.enter(StateFindingEdgeEdge)
	p.ee = intersect.NewEdgeEdgeIntersections(p.builder, p.loose.EdgesCompounds, p.Settings.EdgeEdge, p.logger)
	p.ee.FindIntersections(p.mgr)
}

func (p *PathsToEdgeClusters) writeClusters() {
	p.enter(StateWritingClusters)
	if !p.builder.Compile(p.mgr) {
		p.result.CompileFailed = true
		p.finish("empty")
		return
	}
	p.enter(StateWaitingOnWritingClusters)
}

func (p *PathsToEdgeClusters) output() {
	out, ok := p.builder.Write()
	if !ok {
		p.result.CompileFailed = true
		p.finish("empty")
		return
	}
	p.result.Vertices = out.Vertices
	p.result.Clusters = out.Clusters
	p.result.ValidationErrors = validateGraph(p.builder.Graph, p.logger)
	metrics.Clusters.Add(float64(out.Clusters.Len()))
	metrics.ObserveGraph(out.Vertices.NumOut(), p.builder.Graph.NumValidEdges())

	if !p.Settings.Refine {
		p.finish("ok")
		return
	}

	p.enter(StateRefining)
	n := out.Clusters.Len()
	p.refined = make([]*data.PointIO, n)
	p.dropped = make([]int, n)
	for i := 0; i < n; i++ {
		p.mgr.StartNonAbandonable("refine", func(context.Context) bool {
			cluster := out.Clusters.At(i)
			tree, d, ok := refine.PrimMST(out.Vertices, cluster, cluster.IOIndex)
			if !ok {
				return false
			}
			p.refined[i] = tree
			p.dropped[i] = d
			return true
		})
	}
}

// validateGraph logs every structural finding on g and returns the number
// of invariant violations.
func validateGraph(g *graph.Graph, logger *slog.Logger) int {
	n := 0
	for _, v := range g.Validate() {
		if v.Severity == graph.SeverityError {
			n++
			logger.Warn("graph invariant violated", slog.String("finding", v.Error()))
			continue
		}
		logger.Debug("graph validation", slog.String("finding", v.Error()))
	}
	return n
}

func (p *PathsToEdgeClusters) collectRefined() {
	clusters := &data.Collection{}
	for i, tree := range p.refined {
		if tree == nil {
			// Keep the unrefined cluster when it could not be resolved.
			tree = p.result.Clusters.At(i)
		}
		clusters.Add(tree)
		p.result.DroppedEdges += p.dropped[i]
	}
	p.result.Clusters = clusters
	p.finish("ok")
}

func (p *PathsToEdgeClusters) collectFailures() {
	if err := p.mgr.Wait(); err != nil {
		p.logger.Warn("phase finished with failed tasks",
			slog.String("phase", p.state.String()),
			slog.Any("error", err))
	}
	p.result.TaskFailures = p.mgr.Stats().Failed
}

func (p *PathsToEdgeClusters) cancel(err error) {
	if p.mgr != nil {
		p.mgr.Terminate()
		_ = p.mgr.Wait()
	}
	p.result.Cancelled = true
	p.logger.Warn("pipeline cancelled",
		slog.String("phase", p.state.String()),
		slog.Any("error", err))
	p.finish("cancelled")
}

// enter closes the running phase span and opens one for next.
func (p *PathsToEdgeClusters) enter(next State) {
	p.endPhase()
	p.state = next
	p.phaseStart = time.Now()
	_, p.span = tracer.Start(p.spanContext(), "pipeline."+next.String())
}

func (p *PathsToEdgeClusters) endPhase() {
	if p.span == nil {
		return
	}
	metrics.ObservePhase(p.state.String(), time.Since(p.phaseStart))
	p.span.End()
	p.span = nil
}

func (p *PathsToEdgeClusters) finish(status string) {
	if p.span != nil {
		p.span.SetAttributes(
			attribute.String("status", status),
			attribute.Int("clusters", p.result.Clusters.Len()),
		)
	}
	p.endPhase()
	p.state = StateDone
	metrics.Runs.WithLabelValues(status).Inc()
	p.logger.Info("pipeline finished",
		slog.String("status", status),
		slog.Int("inputs", p.Inputs.Len()),
		slog.Int("skipped", p.result.Skipped),
		slog.Int("point_edge", p.result.PointEdge),
		slog.Int("edge_edge", p.result.EdgeEdge),
		slog.Int("clusters", p.result.Clusters.Len()))
}

func (p *PathsToEdgeClusters) spanContext() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}
