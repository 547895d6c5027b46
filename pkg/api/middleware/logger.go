package middleware

import (
	"net/http"
	"time"

	"github.com/goclaw/actiond/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. Requests carry a
// request-scoped logger retrievable with logger.FromContext.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLog := log.With("request_id", GetRequestID(r.Context()))
			r = r.WithContext(reqLog.WithContext(r.Context()))

			wrapped := newStatusWriter(w)
			next.ServeHTTP(wrapped, r)

			reqLog.InfoContext(r.Context(), "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"size", wrapped.size,
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
