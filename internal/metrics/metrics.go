package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the consultation engine.
type Metrics struct {
	// Pipeline metrics
	TasksProcessed *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TierRoutings   *prometheus.CounterVec
	Escalations    *prometheus.CounterVec
	Recoveries     *prometheus.CounterVec

	// Quality gate metrics
	GateResults  *prometheus.CounterVec
	QualityScore prometheus.Histogram

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Pattern library metrics
	PatternsStored prometheus.Counter
	PatternsReused prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Registration
// happens once per process; subsequent calls return the shared instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			TasksProcessed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "counsel_tasks_processed_total",
					Help: "Total tasks processed, by final tier and success",
				},
				[]string{"tier", "success"},
			),
			TaskDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "counsel_task_duration_seconds",
					Help:    "End-to-end task processing duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
				},
				[]string{"tier"},
			),
			TierRoutings: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "counsel_tier_routings_total",
					Help: "Routing decisions by tier",
				},
				[]string{"tier"},
			),
			Escalations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "counsel_escalations_total",
					Help: "Tier escalations by origin tier",
				},
				[]string{"from_tier"},
			),
			Recoveries: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "counsel_recoveries_total",
					Help: "Recovery attempts by strategy and result",
				},
				[]string{"strategy", "result"},
			),
			GateResults: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "counsel_quality_gate_total",
					Help: "Quality gate verdicts",
				},
				[]string{"result"},
			),
			QualityScore: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "counsel_quality_score",
					Help:    "Overall quality scores from the gate",
					Buckets: prometheus.LinearBuckets(0.5, 0.05, 10),
				},
			),
			CacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "counsel_cache_hits_total",
					Help: "Consultation cache hits",
				},
			),
			CacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "counsel_cache_misses_total",
					Help: "Consultation cache misses",
				},
			),
			PatternsStored: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "counsel_patterns_stored_total",
					Help: "Success patterns stored",
				},
			),
			PatternsReused: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "counsel_patterns_reused_total",
					Help: "Patterns applied to later tasks",
				},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "counsel_http_requests_total",
					Help: "HTTP requests by method, path and status",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "counsel_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})
	return sharedMetrics
}
