// Package metrics holds the Prometheus collectors of the reference pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels.
const (
	StageIngress    = "ingress"
	StageDownstream = "downstream"
)

var (
	TriggersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triggerbench_triggers_total",
		Help: "Trigger requests accepted by the ingress stage",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerbench_events_total",
		Help: "Change events handled by the downstream stage, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "triggerbench_stage_duration_seconds",
		Help:    "Per-stage handler latency",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0},
	}, []string{"stage"})

	TriggerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "triggerbench_trigger_latency_seconds",
		Help:    "Delay from document write to downstream handler start",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	E2EDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "triggerbench_e2e_duration_seconds",
		Help:    "Originating timestamp to downstream completion",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerbench_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	DeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triggerbench_dead_lettered_total",
		Help: "Change events moved to the dead letter queue",
	})
)
