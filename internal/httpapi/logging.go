package httpapi

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campusq/internal/metrics"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		duration := time.Since(start)

		pattern := pathPattern(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(writer.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, pattern).Observe(duration.Seconds())

		log.Printf("request method=%s path=%s status=%d duration_ms=%d request_id=%s",
			r.Method, r.URL.Path, writer.status, duration.Milliseconds(), r.Header.Get("X-Request-ID"))
	})
}

// pathPattern collapses path parameters so metric cardinality stays bounded.
func pathPattern(path string) string {
	switch {
	case strings.HasPrefix(path, "/queue/ticket/"):
		return "/queue/ticket/{id}"
	case strings.HasPrefix(path, "/display/"):
		return "/display/{department_id}"
	case strings.HasPrefix(path, "/staff/ticket/"):
		rest := strings.Trim(strings.TrimPrefix(path, "/staff/ticket/"), "/")
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return "/staff/ticket/{id}/" + rest[idx+1:]
		}
		return "/staff/ticket/{id}"
	case strings.HasPrefix(path, "/admin/departments/"):
		return "/admin/departments/{id}"
	default:
		return path
	}
}
