package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// run execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "regflow_"):
//
// 1. runs_total (counter): Runs that reached a terminal state.
// Labels: status (completed/failed/cancelled).
//
// 2. inflight_runs (gauge): Runs currently live (running or suspended).
//
// 3. steps_total (counter): Step executions by outcome.
// Labels: step_id, status (success/error).
//
// 4. step_latency_seconds (histogram): Step execution duration.
// Labels: step_id.
//
// 5. interventions_open (gauge): Intervention requests awaiting a decision.
//
// 6. intervention_wait_seconds (histogram): Time from gate open to
// resolution or expiry.
//
// Step IDs are the only per-series label; run IDs are deliberately kept out
// of label sets to bound cardinality.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	exec := graph.NewExecutor(g, st, llm, emitter, graph.Options{Metrics: metrics})
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: Prometheus collectors handle concurrent updates internally.
type PrometheusMetrics struct {
	runsTotal         *prometheus.CounterVec
	inflightRuns      prometheus.Gauge
	stepsTotal        *prometheus.CounterVec
	stepLatency       *prometheus.HistogramVec
	interventionsOpen prometheus.Gauge
	interventionWait  prometheus.Histogram

	enabled bool
}

// NewPrometheusMetrics creates and registers all run execution metrics with
// the provided Prometheus registry. Pass nil (or
// prometheus.DefaultRegisterer) to use the global registry; a dedicated
// registry is recommended for isolation and for tests.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.runsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regflow",
		Name:      "runs_total",
		Help:      "Runs that reached a terminal state",
	}, []string{"status"}) // status: completed, failed, cancelled

	pm.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "regflow",
		Name:      "inflight_runs",
		Help:      "Runs currently live (running or suspended)",
	})

	pm.stepsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regflow",
		Name:      "steps_total",
		Help:      "Step executions by outcome",
	}, []string{"step_id", "status"}) // status: success, error

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "regflow",
		Name:      "step_latency_seconds",
		Help:      "Step execution duration from dispatch to applied update",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"step_id"})

	pm.interventionsOpen = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "regflow",
		Name:      "interventions_open",
		Help:      "Intervention requests awaiting an external decision",
	})

	pm.interventionWait = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "regflow",
		Name:      "intervention_wait_seconds",
		Help:      "Time from intervention gate open to resolution or expiry",
		Buckets:   []float64{1, 10, 60, 300, 600, 1800, 3600, 14400},
	})

	return pm
}

// RunStarted records a run entering execution.
func (pm *PrometheusMetrics) RunStarted() {
	if pm == nil || !pm.enabled {
		return
	}
	pm.inflightRuns.Inc()
}

// RunFinished records a run leaving execution with the given terminal
// status ("completed", "failed", "cancelled").
func (pm *PrometheusMetrics) RunFinished(status string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.inflightRuns.Dec()
	pm.runsTotal.WithLabelValues(status).Inc()
}

// RecordStep records one step execution with its outcome and latency.
// Status is "success" or "error".
func (pm *PrometheusMetrics) RecordStep(stepID string, latency time.Duration, status string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.stepsTotal.WithLabelValues(stepID, status).Inc()
	pm.stepLatency.WithLabelValues(stepID).Observe(latency.Seconds())
}

// InterventionOpened records an intervention gate opening.
func (pm *PrometheusMetrics) InterventionOpened() {
	if pm == nil || !pm.enabled {
		return
	}
	pm.interventionsOpen.Inc()
}

// InterventionClosed records an intervention ending (resolved, expired, or
// cancelled) together with how long it stayed open.
func (pm *PrometheusMetrics) InterventionClosed(wait time.Duration) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.interventionsOpen.Dec()
	pm.interventionWait.Observe(wait.Seconds())
}
