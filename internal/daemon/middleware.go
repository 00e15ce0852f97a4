package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rattab/slick/pkg/slick"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps an HTTP handler with Prometheus metrics. If
// metrics is nil, the handler is returned unchanged (zero overhead).
func InstrumentHandler(next http.Handler, metrics *slick.Metrics) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		path := sanitizePath(r.URL.Path)
		status := strconv.Itoa(rec.status)

		metrics.DaemonRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		metrics.DaemonRequestDurationSeconds.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// sanitizePath is a no-op identity today since every introspection
// route is fixed (no path parameters), but it keeps the metrics label
// derivation isolated from registerRoutes so a future parameterized
// route doesn't blow up cardinality unnoticed.
func sanitizePath(path string) string {
	return path
}
