package observability

import (
	"net/http"
	"strconv"
	"time"
)

// Mount registers the health and metrics endpoints on mux.
func Mount(mux *http.ServeMux, hc *HealthChecker) {
	mux.HandleFunc("GET /health", hc.HealthHandler())
	mux.HandleFunc("GET /health/live", LivenessHandler())
	mux.HandleFunc("GET /health/ready", hc.ReadinessHandler())
	mux.Handle("GET /metrics", MetricsHandler())
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency. The route label is the
// matched mux pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
	})
}
