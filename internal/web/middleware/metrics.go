package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkio_http_requests_total",
			Help: "HTTP requests by method, normalised path and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulkio_http_request_duration_seconds",
			Help:    "HTTP request latency by method and normalised path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Metrics records request counts and latency. Paths are normalised so ids
// do not explode label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := NormalizePath(r.URL.Path)

		wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return hijack(rw.ResponseWriter)
}

// NormalizePath replaces the variable segments of API paths:
//
//	/api/currencies/import/jobs/9b1d...        -> /api/{entity}/import/jobs/{id}
//	/api/currencies/export/jobs/9b1d.../download -> /api/{entity}/export/jobs/{id}/download
//	/api/jobs/9b1d.../events                   -> /api/jobs/{id}/events
func NormalizePath(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 || segs[0] != "api" || segs[1] == "entities" {
		return path
	}

	if segs[1] == "jobs" {
		if len(segs) >= 3 {
			segs[2] = "{id}"
		}
		return "/" + strings.Join(segs, "/")
	}

	segs[1] = "{entity}"
	// import/jobs/{id}, export/jobs/{id}[/download], import/error-report/{id}
	if len(segs) >= 5 && (segs[3] == "jobs" || segs[3] == "error-report") {
		segs[4] = "{id}"
	}
	return "/" + strings.Join(segs, "/")
}
