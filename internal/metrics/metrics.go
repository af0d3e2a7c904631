// Package metrics exposes prometheus collectors for discovery runs and
// pipeline stages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name when none is configured
const DefaultNamespace = "newsroom"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Stage metrics
	StageRunsTotal  *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StageGatedTotal *prometheus.CounterVec

	// Discovery metrics
	DiscoveryRunsTotal   *prometheus.CounterVec
	DiscoveryDuration    prometheus.Histogram
	DiscoveryItemsTotal  *prometheus.CounterVec
	DiscoveryTopicsTotal *prometheus.CounterVec
	SourceErrorsTotal    *prometheus.CounterVec
	DedupDegradedTotal   prometheus.Counter

	// Audit metrics
	AuditDroppedTotal prometheus.Counter
}

// New creates and registers the collectors. A nil registerer uses the default one.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	factory := promauto.With(reg)
	m := &Metrics{}
	m.initStageMetrics(factory, namespace)
	m.initDiscoveryMetrics(factory, namespace)

	m.AuditDroppedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "dropped_total",
		Help:      "Audit entries dropped because the write buffer was full",
	})
	return m
}

func (m *Metrics) initStageMetrics(factory promauto.Factory, namespace string) {
	m.StageRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Pipeline stage executions by outcome",
		},
		[]string{"stage", "status"},
	)

	m.StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage executions",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"stage"},
	)

	m.StageGatedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_gated_total",
			Help:      "Stage requests rejected because the topic was not ready",
		},
		[]string{"stage"},
	)
}

func (m *Metrics) initDiscoveryMetrics(factory promauto.Factory, namespace string) {
	m.DiscoveryRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Discovery runs by outcome",
		},
		[]string{"status"},
	)

	m.DiscoveryDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "run_duration_seconds",
		Help:      "Duration of discovery runs",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	m.DiscoveryItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "items_total",
			Help:      "Trend items seen by discovery, split into fetched and duplicate",
		},
		[]string{"kind"},
	)

	m.DiscoveryTopicsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "topics_total",
			Help:      "Topics resolved by discovery, split into created and reused",
		},
		[]string{"outcome"},
	)

	m.SourceErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "source_errors_total",
			Help:      "Trend source fetch failures",
		},
		[]string{"source"},
	)

	m.DedupDegradedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dedup",
		Name:      "degraded_total",
		Help:      "Topic resolutions that fell back to slug matching",
	})
}

// ObserveStage records one stage execution
func (m *Metrics) ObserveStage(stage string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageRunsTotal.WithLabelValues(stage, statusOf(err)).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// StageGated records a request refused by the gating rule
func (m *Metrics) StageGated(stage string) {
	if m == nil {
		return
	}
	m.StageGatedTotal.WithLabelValues(stage).Inc()
}

// DiscoveryRun summarizes one discovery run
type DiscoveryRun struct {
	Fetched    int
	Duplicates int
	Created    int
	Reused     int
	Degraded   int
	Err        error
	Elapsed    time.Duration
}

// ObserveDiscovery records the outcome of a discovery run
func (m *Metrics) ObserveDiscovery(run DiscoveryRun) {
	if m == nil {
		return
	}
	m.DiscoveryRunsTotal.WithLabelValues(statusOf(run.Err)).Inc()
	m.DiscoveryDuration.Observe(run.Elapsed.Seconds())
	m.DiscoveryItemsTotal.WithLabelValues("fetched").Add(float64(run.Fetched))
	m.DiscoveryItemsTotal.WithLabelValues("duplicate").Add(float64(run.Duplicates))
	m.DiscoveryTopicsTotal.WithLabelValues("created").Add(float64(run.Created))
	m.DiscoveryTopicsTotal.WithLabelValues("reused").Add(float64(run.Reused))
	m.DedupDegradedTotal.Add(float64(run.Degraded))
}

// SourceFailed records a trend source fetch failure
func (m *Metrics) SourceFailed(source string) {
	if m == nil {
		return
	}
	m.SourceErrorsTotal.WithLabelValues(source).Inc()
}

// AuditDropped is suitable as an audit drop hook
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.AuditDroppedTotal.Inc()
}

func statusOf(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusSuccess
}
