// Package metrics provides Prometheus metrics for the tally webhook service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scoreBuckets split the 0-100 score range into tenths.
var scoreBuckets = prometheus.LinearBuckets(10, 10, 10) //nolint:gochecknoglobals // fixed bucket layout

// latencyBuckets are in milliseconds.
var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000} //nolint:gochecknoglobals // fixed bucket layout

// subsystem groups every metric under the webhook service.
const subsystem = "webhook"

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace string
	enabled   bool
	registry  prometheus.Registerer

	// Webhook outcomes
	submissions         *prometheus.CounterVec
	duplicateDeliveries *prometheus.CounterVec
	identityResolutions *prometheus.CounterVec

	// Scores
	categoryScores *prometheus.HistogramVec
	overallScores  prometheus.Histogram
	scoreConflicts prometheus.Counter

	// Store
	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	dedupeEntries        prometheus.Gauge
}

// exported pairs the recording manager with the registry served on /metrics.
type exported struct {
	manager  *Manager
	registry *prometheus.Registry
}

// global is swapped whole by Configure.
var global atomic.Pointer[exported] //nolint:gochecknoglobals // process-wide metrics

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	Configure()
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it before the /metrics handler is built; handlers created
// earlier keep serving the previous registry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	m := NewManager(append(opts, WithPrometheusRegistry(registry))...)
	global.Store(&exported{manager: m, registry: registry})
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "tally",
		enabled:   true,
		registry:  prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one block per metric
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "submissions_total",
		Help:      "Webhook submissions by handler and outcome",
	}, []string{"handler", "outcome"})

	m.duplicateDeliveries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "duplicate_deliveries_total",
		Help:      "Redelivered submissions answered from the delivery cache",
	}, []string{"handler"})

	m.identityResolutions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "identity_resolutions_total",
		Help:      "User identity resolutions by source (hidden, field, directory, unresolved)",
	}, []string{"source"})

	m.categoryScores = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "category_score",
		Help:      "Distribution of computed category scores",
		Buckets:   scoreBuckets,
	}, []string{"category"})

	m.overallScores = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "overall_score",
		Help:      "Distribution of recomputed overall project scores",
		Buckets:   scoreBuckets,
	})

	m.scoreConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "score_conflicts_total",
		Help:      "Category writes rejected because scores changed concurrently",
	})

	m.storeOperations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "store_operations_total",
		Help:      "Store calls by operation and outcome",
	}, []string{"op", "outcome"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "store_latency_milliseconds",
		Help:      "Store call latency in milliseconds",
		Buckets:   latencyBuckets,
	}, []string{"op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "errors_by_endpoint_total",
		Help:      "HTTP error responses by endpoint, method and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.dedupeEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "dedupe_entries",
		Help:      "Deliveries currently remembered by the dedupe cache",
	})
}

// RecordSubmission counts one handled submission.
func RecordSubmission(handler, outcome string) {
	if m := global.Load().manager; m.enabled {
		m.submissions.WithLabelValues(handler, outcome).Inc()
	}
}

// RecordDuplicateDelivery counts a replayed delivery.
func RecordDuplicateDelivery(handler string) {
	if m := global.Load().manager; m.enabled {
		m.duplicateDeliveries.WithLabelValues(handler).Inc()
	}
}

// RecordIdentityResolution counts how a user was (or was not) identified.
func RecordIdentityResolution(source string) {
	if m := global.Load().manager; m.enabled {
		m.identityResolutions.WithLabelValues(source).Inc()
	}
}

// RecordCategoryScore observes a computed category score.
func RecordCategoryScore(category string, score int) {
	if m := global.Load().manager; m.enabled {
		m.categoryScores.WithLabelValues(category).Observe(float64(score))
	}
}

// RecordOverallScore observes a recomputed overall score.
func RecordOverallScore(score int) {
	if m := global.Load().manager; m.enabled {
		m.overallScores.Observe(float64(score))
	}
}

// RecordScoreConflict counts a rejected concurrent category write.
func RecordScoreConflict() {
	if m := global.Load().manager; m.enabled {
		m.scoreConflicts.Inc()
	}
}

// RecordStoreOperation counts a store call and observes its latency.
func RecordStoreOperation(op, outcome string, latencyMs float64) {
	if m := global.Load().manager; m.enabled {
		m.storeOperations.WithLabelValues(op, outcome).Inc()
		m.storeLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := global.Load().manager; m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := global.Load().manager; m.enabled {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByEndpoint increments the error counter for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m := global.Load().manager; m.enabled {
		m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage updates the system memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	if m := global.Load().manager; m.enabled {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount updates the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	if m := global.Load().manager; m.enabled {
		m.systemGoroutineCount.Set(float64(count))
	}
}

// UpdateDedupeEntries sets the dedupe cache size gauge.
func UpdateDedupeEntries(n int64) {
	if m := global.Load().manager; m.enabled {
		m.dedupeEntries.Set(float64(n))
	}
}

// GetRegistry returns the registry all service metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return global.Load().registry
}
