// Package monitoring wires the iteration engine's observable counters,
// timings, and gauges into github.com/prometheus/client_golang, replacing
// the plain in-memory OrchestratorMetrics struct the teacher uses
// (internal/orchestrator) with real exported metrics, consumed behind a
// Sink interface so IterationExecutor and LearningLoop never import a
// concrete exporter.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atlas-desktop/strategy-discovery/internal/classifier"
)

// Sink is the side-observer interface IterationExecutor emits to. Emissions are best-effort and may be reordered (spec.md §5).
type Sink interface {
	RecordClassification(level classifier.Level)
	RecordStageTiming(stage string, seconds float64)
	RecordChampionSharpe(sharpe float64)
	RecordDiversity(diversity float64)
	RecordOrphanedWorkers(count int64)
	RecordIterationError(kind string)
}

// PrometheusSink is the production Sink: two counter vectors, one
// histogram vector, and three gauges, registered on construction.
type PrometheusSink struct {
	classifications *prometheus.CounterVec
	stageTimings    *prometheus.HistogramVec
	championSharpe  prometheus.Gauge
	diversity       prometheus.Gauge
	orphanedWorkers prometheus.Gauge
	iterationErrors *prometheus.CounterVec
}

// NewPrometheusSink builds and registers a PrometheusSink against reg. A
// fresh prometheus.NewRegistry() is recommended over the global default
// registry so tests can construct independent sinks.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovery",
			Name:      "iterations_by_level_total",
			Help:      "Count of iterations by SuccessClassifier level.",
		}, []string{"level"}),
		stageTimings: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "discovery",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each iteration stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		championSharpe: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discovery",
			Name:      "champion_sharpe_ratio",
			Help:      "Sharpe ratio of the current champion, or 0 if none exists.",
		}),
		diversity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discovery",
			Name:      "population_diversity",
			Help:      "Most recent NoveltyAnalyzer diversity score.",
		}),
		orphanedWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discovery",
			Name:      "sandbox_orphaned_workers",
			Help:      "Sandbox workers still being reclaimed after a timeout (target: 0 at steady state).",
		}),
		iterationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovery",
			Name:      "iteration_errors_total",
			Help:      "Count of captured per-iteration failures by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(s.classifications, s.stageTimings, s.championSharpe, s.diversity, s.orphanedWorkers, s.iterationErrors)
	return s
}

func (s *PrometheusSink) RecordClassification(level classifier.Level) {
	s.classifications.WithLabelValues(string(level)).Inc()
}

func (s *PrometheusSink) RecordStageTiming(stage string, seconds float64) {
	s.stageTimings.WithLabelValues(stage).Observe(seconds)
}

func (s *PrometheusSink) RecordChampionSharpe(sharpe float64) {
	s.championSharpe.Set(sharpe)
}

func (s *PrometheusSink) RecordDiversity(diversity float64) {
	s.diversity.Set(diversity)
}

func (s *PrometheusSink) RecordOrphanedWorkers(count int64) {
	s.orphanedWorkers.Set(float64(count))
}

func (s *PrometheusSink) RecordIterationError(kind string) {
	s.iterationErrors.WithLabelValues(kind).Inc()
}

// NoopSink discards every emission; used when monitoring is not wired
// (e.g. in unit tests).
type NoopSink struct{}

func (NoopSink) RecordClassification(classifier.Level)  {}
func (NoopSink) RecordStageTiming(string, float64)       {}
func (NoopSink) RecordChampionSharpe(float64)            {}
func (NoopSink) RecordDiversity(float64)                 {}
func (NoopSink) RecordOrphanedWorkers(int64)             {}
func (NoopSink) RecordIterationError(string)             {}
