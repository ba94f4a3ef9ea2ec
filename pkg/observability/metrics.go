package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nutrilog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Conversation metrics
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_events_total",
			Help: "Total number of chat events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	sessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_sessions_started_total",
			Help: "Total number of logging sessions started",
		},
		[]string{"mode"},
	)

	sessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_sessions_ended_total",
			Help: "Total number of logging sessions ended",
		},
		[]string{"mode", "reason"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nutrilog_active_sessions",
			Help: "Number of open logging sessions",
		},
	)

	// Estimator metrics
	estimatorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_estimator_calls_total",
			Help: "Total number of nutrition estimator calls",
		},
		[]string{"provider", "status"},
	)

	estimatorCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nutrilog_estimator_call_duration_seconds",
			Help:    "Nutrition estimator call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	// Record store metrics
	storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_store_operations_total",
			Help: "Total number of record store operations",
		},
		[]string{"operation", "status"},
	)

	storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nutrilog_store_operation_duration_seconds",
			Help:    "Record store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Retention metrics
	retentionArchived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_retention_archived_total",
			Help: "Total number of records archived by the retention sweep",
		},
		[]string{"collection"},
	)

	retentionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_retention_runs_total",
			Help: "Total number of retention sweeps",
		},
		[]string{"status"},
	)

	initOnce sync.Once
)

// InitMetrics registers the metrics with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			eventsTotal,
			sessionsStarted,
			sessionsEnded,
			activeSessions,
			estimatorCallsTotal,
			estimatorCallDuration,
			storeOperationsTotal,
			storeOperationDuration,
			retentionArchived,
			retentionRuns,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEvent counts one chat event. Outcome is "queued", "dropped" or
// "limited".
func RecordEvent(kind, outcome string) {
	eventsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordSessionStarted counts a new session.
func RecordSessionStarted(mode string) {
	sessionsStarted.WithLabelValues(mode).Inc()
	activeSessions.Inc()
}

// RecordSessionEnded counts an ended session.
func RecordSessionEnded(mode, reason string) {
	sessionsEnded.WithLabelValues(mode, reason).Inc()
	activeSessions.Dec()
}

// RecordEstimatorCall records estimator call metrics
func RecordEstimatorCall(provider, status string, duration time.Duration) {
	estimatorCallsTotal.WithLabelValues(provider, status).Inc()
	estimatorCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordStoreOperation records record store metrics
func RecordStoreOperation(operation, status string, duration time.Duration) {
	storeOperationsTotal.WithLabelValues(operation, status).Inc()
	storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRetentionRun records the outcome of a sweep and how many records
// it archived per collection.
func RecordRetentionRun(status string, archived map[string]int) {
	retentionRuns.WithLabelValues(status).Inc()
	for collection, n := range archived {
		retentionArchived.WithLabelValues(collection).Add(float64(n))
	}
}

// StatusLabel maps an error to the status label used by the counters.
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
