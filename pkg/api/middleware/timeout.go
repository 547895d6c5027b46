package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/goclaw/actiond/pkg/api/response"
)

// Timeout returns a middleware that answers 503 with the JSON error envelope
// when a handler runs longer than timeout. The handler context is cancelled
// at the deadline. It must not wrap websocket routes.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := json.Marshal(response.ErrorResponse{
				Error: response.ErrorDetail{
					Code:      response.ErrCodeGatewayTimeout,
					Message:   "Request timeout",
					RequestID: RequestIDOrUnknown(r),
				},
			})
			w.Header().Set("Content-Type", "application/json")
			http.TimeoutHandler(next, timeout, string(body)).ServeHTTP(w, r)
		})
	}
}
