package producer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"automagick_post_producer/pipeline"
)

const (
	// MetricsNamespace prefixes every producer metric.
	MetricsNamespace = "automagick"

	// MetricsSubsystem groups the generation run metrics.
	MetricsSubsystem = "producer"
)

// Metrics holds the Prometheus collectors of the producer.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
	SoftFailuresTotal  *prometheus.CounterVec
	HardFailuresTotal  *prometheus.CounterVec
	RunsSkippedTotal   prometheus.Counter
	RunInProgress      prometheus.Gauge
	NextRunTimestamp   prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "runs_total",
				Help:      "Generation runs by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a generation run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
			},
			[]string{"trigger"},
		),
		SoftFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "soft_failures_total",
				Help:      "Failures that degraded a published item, by trigger",
			},
			[]string{"trigger"},
		),
		HardFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "hard_failures_total",
				Help:      "Runs aborted before publishing, by the stage that was executing",
			},
			[]string{"stage"},
		),
		RunsSkippedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "runs_skipped_total",
				Help:      "Scheduled firings skipped because a run was in progress",
			},
		),
		RunInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "run_in_progress",
				Help:      "1 while a generation run executes",
			},
		),
		NextRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "next_run_timestamp_seconds",
				Help:      "Unix time of the next scheduled run, 0 when none",
			},
		),
	}
}

func (m *Metrics) observeRun(trigger Trigger, res pipeline.Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(trigger), res.Outcome()).Inc()
	m.RunDurationSeconds.WithLabelValues(string(trigger)).Observe(elapsed.Seconds())
	if res.Published() {
		m.SoftFailuresTotal.WithLabelValues(string(trigger)).Add(float64(len(res.Errors)))
		return
	}
	m.HardFailuresTotal.WithLabelValues(string(res.FailedStage)).Inc()
}

func (m *Metrics) setNextRun(t time.Time) {
	if m == nil {
		return
	}
	if t.IsZero() {
		m.NextRunTimestamp.Set(0)
		return
	}
	m.NextRunTimestamp.Set(float64(t.Unix()))
}
