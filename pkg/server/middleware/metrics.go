package middleware

import (
	"net/http"
	"time"

	"faims3/conductor/pkg/telemetry/metrics"
)

// MetricsMiddleware records request counts and latencies under a fixed
// route label. collector may be nil.
//
// Example usage:
//
//	mux.Handle(pattern, MetricsMiddleware(collector, pattern)(handler))
func MetricsMiddleware(collector *metrics.Collector, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			collector.RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}
