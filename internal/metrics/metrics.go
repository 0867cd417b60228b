// Package metrics exposes Prometheus instrumentation for ranking runs.
//
// Each Metrics value owns its registry, so several pipelines (and tests) can coexist in one
// process without duplicate registration panics. All methods are safe on a nil receiver.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "resume_ranker"

// Oracle call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	OracleCallsTotal   *prometheus.CounterVec
	OracleRetriesTotal prometheus.Counter
	FallbacksTotal     prometheus.Counter
	StageDuration      *prometheus.HistogramVec
	RunsTotal          *prometheus.CounterVec
	CandidatesRanked   prometheus.Histogram
	EvaluationMetric   *prometheus.GaugeVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OracleCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_calls_total",
				Help:      "Oracle scoring attempts by outcome",
			},
			[]string{"outcome"},
		),
		OracleRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_retries_total",
			Help:      "Oracle attempts that were retried after a failure",
		}),
		FallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_fallbacks_total",
			Help:      "Candidates that kept their lexical score after reranking failed",
		}),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed pipeline runs by final state and degradation",
			},
			[]string{"state", "degraded"},
		),
		CandidatesRanked: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_ranked",
			Help:      "Number of candidates per run",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000},
		}),
		EvaluationMetric: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "evaluation_metric",
				Help:      "Most recent evaluation metric values",
			},
			[]string{"metric"},
		),
	}
	m.registry.MustRegister(
		m.OracleCallsTotal,
		m.OracleRetriesTotal,
		m.FallbacksTotal,
		m.StageDuration,
		m.RunsTotal,
		m.CandidatesRanked,
		m.EvaluationMetric,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveOracleCall counts one oracle attempt.
func (m *Metrics) ObserveOracleCall(outcome string) {
	if m == nil {
		return
	}
	m.OracleCallsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry counts one retried oracle attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.OracleRetriesTotal.Inc()
}

// ObserveFallbacks adds n fallback candidates.
func (m *Metrics) ObserveFallbacks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FallbacksTotal.Add(float64(n))
}

// ObserveStage records a stage duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(state string, degraded bool, candidates int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state, fmt.Sprintf("%t", degraded)).Inc()
	m.CandidatesRanked.Observe(float64(candidates))
}

// ObserveEvaluation sets the evaluation gauges.
func (m *Metrics) ObserveEvaluation(values map[string]float64) {
	if m == nil {
		return
	}
	for name, v := range values {
		m.EvaluationMetric.WithLabelValues(name).Set(v)
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return fmt.Errorf("metrics are not enabled")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
