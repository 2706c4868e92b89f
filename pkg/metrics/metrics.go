// Package metrics holds the Prometheus instruments of the cluster pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PhaseDuration measures the wall time of each pipeline phase.
	// Labels: phase
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "filament",
		Subsystem: "pipeline",
		Name:      "phase_duration_seconds",
		Help:      "Duration of pipeline phases in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"phase"})

	// Runs counts finished pipeline runs.
	// Labels: status (ok, empty, cancelled)
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filament",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Finished pipeline runs by status",
	}, []string{"status"})

	// InputsSkipped counts input datasets rejected before ingestion.
	InputsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filament",
		Subsystem: "pipeline",
		Name:      "inputs_skipped_total",
		Help:      "Input datasets skipped for having too few points",
	})

	// Intersections counts intersection nodes created.
	// Labels: kind (point-edge, edge-edge)
	Intersections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filament",
		Subsystem: "graph",
		Name:      "intersections_total",
		Help:      "Intersections resolved by kind",
	}, []string{"kind"})

	// Clusters counts emitted clusters.
	Clusters = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filament",
		Subsystem: "graph",
		Name:      "clusters_total",
		Help:      "Clusters written",
	})

	// GraphSize records node and edge counts of compiled graphs.
	// Labels: entity (nodes, edges)
	GraphSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "filament",
		Subsystem: "graph",
		Name:      "size",
		Help:      "Node and edge counts of compiled graphs",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
	}, []string{"entity"})
)

// ObservePhase records d for phase.
func ObservePhase(phase string, d time.Duration) {
	PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveGraph records the size of a compiled graph.
func ObserveGraph(nodes, edges int) {
	GraphSize.WithLabelValues("nodes").Observe(float64(nodes))
	GraphSize.WithLabelValues("edges").Observe(float64(edges))
}
