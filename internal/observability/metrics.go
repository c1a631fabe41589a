package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sectorintel"

// Metrics holds Prometheus metrics for SectorIntel. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Feed metrics
	RecordsIngested *prometheus.CounterVec
	FeedErrors      *prometheus.CounterVec

	// Pipeline metrics
	DuplicatesRemoved prometheus.Counter
	NewIndicators     prometheus.Counter
	RecordFailures    *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec

	// Scoring metrics
	IndicatorsScored *prometheus.CounterVec
	RiskScore        prometheus.Histogram

	// Sector metrics
	SectorIndicators *prometheus.CounterVec

	// API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_ingested_total",
				Help:      "Total raw threat records ingested by source",
			},
			[]string{"source"},
		),
		FeedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_errors_total",
				Help:      "Feed collection failures by feed",
			},
			[]string{"feed"},
		),
		DuplicatesRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicates_removed_total",
				Help:      "Indicators dropped by deduplication",
			},
		),
		NewIndicators: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "new_indicators_total",
				Help:      "Indicators not seen in an earlier run",
			},
		),
		RecordFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "record_failures_total",
				Help:      "Per-record processing failures by stage",
			},
			[]string{"stage"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"stage"},
		),
		IndicatorsScored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "indicators_scored_total",
				Help:      "Indicators scored by priority tier",
			},
			[]string{"priority"},
		),
		RiskScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_score",
				Help:      "Distribution of computed risk scores",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
		),
		SectorIndicators: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sector_indicators_total",
				Help:      "Indicators annotated by sector analyzers",
			},
			[]string{"sector"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// IncIngested counts raw records from a source.
func (m *Metrics) IncIngested(source string, n int) {
	if m == nil {
		return
	}
	m.RecordsIngested.WithLabelValues(source).Add(float64(n))
}

// IncFeedError counts a failed feed collection.
func (m *Metrics) IncFeedError(feed string) {
	if m == nil {
		return
	}
	m.FeedErrors.WithLabelValues(feed).Inc()
}

// AddDuplicates counts indicators removed by deduplication.
func (m *Metrics) AddDuplicates(n int) {
	if m == nil {
		return
	}
	m.DuplicatesRemoved.Add(float64(n))
}

// AddNew counts indicators first seen in this run.
func (m *Metrics) AddNew(n int) {
	if m == nil {
		return
	}
	m.NewIndicators.Add(float64(n))
}

// IncRecordFailure counts a per-record failure in stage.
func (m *Metrics) IncRecordFailure(stage string) {
	if m == nil {
		return
	}
	m.RecordFailures.WithLabelValues(stage).Inc()
}

// ObserveScore records a scored indicator.
func (m *Metrics) ObserveScore(priority string, score float64) {
	if m == nil {
		return
	}
	m.IndicatorsScored.WithLabelValues(priority).Inc()
	m.RiskScore.Observe(score)
}

// AddSector counts indicators annotated by a sector analyzer.
func (m *Metrics) AddSector(sector string, n int) {
	if m == nil {
		return
	}
	m.SectorIndicators.WithLabelValues(sector).Add(float64(n))
}

// ObserveRequest records an HTTP request.
func (m *Metrics) ObserveRequest(method, path, status string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
}
