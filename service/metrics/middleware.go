package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware records request duration and count for the wrapped handler.
// handlerName should be the route pattern (e.g., "/api/v1/positions"), never the raw path.
func HTTPMetricsMiddleware(m *Metrics, handlerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer Timer(time.Now(), func(duration float64) {
				m.RecordHTTPRequest(handlerName, r.Method, wrapped.statusCode, duration)
			})()
			next.ServeHTTP(wrapped, r)
		})
	}
}

// responseWriter captures the status code written by the next handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Timer returns a func that reports the time elapsed since start.
//
//	defer Timer(time.Now(), m.RecordSomething)()
func Timer(start time.Time, recordFunc func(float64)) func() {
	return func() {
		recordFunc(time.Since(start).Seconds())
	}
}
