// Package middleware provides reusable HTTP middleware for request IDs,
// Prometheus metrics and request timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/summarysearch/summarysearch/pkg/metrics"
)

// Metrics returns middleware that records HTTP request count, latency and the
// in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(sw.status),
			).Inc()
			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

var knownPaths = map[string]struct{}{
	"/":                        {},
	"/search":                  {},
	"/api/v1/search":           {},
	"/api/v1/index/refresh":    {},
	"/api/v1/index/stats":      {},
	"/api/v1/cache/stats":      {},
	"/api/v1/cache/invalidate": {},
	"/health/live":             {},
	"/health/ready":            {},
}

// normalizePath collapses unknown paths into one label value so scanners
// cannot blow up label cardinality.
func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}
