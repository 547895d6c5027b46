// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/goclaw/actiond/config"
	"github.com/goclaw/actiond/pkg/api/handlers"
	"github.com/goclaw/actiond/pkg/api/middleware"
	"github.com/goclaw/actiond/pkg/api/response"
	"github.com/goclaw/actiond/pkg/logger"
)

// Handlers holds all HTTP handlers. Nil handlers leave their routes out.
type Handlers struct {
	// Actions accepts wire actions.
	Actions *handlers.ActionHandler

	// Toasts exposes the toast stack.
	Toasts *handlers.ToastHandler

	// Tasks exposes scheduler introspection.
	Tasks *handlers.TaskHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Stream is the toast websocket.
	Stream *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// MetricsHandler serves the scrape endpoint on the API port when set.
	MetricsHandler http.Handler

	// RateLimiter bounds POST /api/v1/actions. Nil disables limiting.
	RateLimiter *rate.Limiter
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	r.Use(middleware.CORS(cfg.Server.CORS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "route not found", middleware.RequestIDOrUnknown(r))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed, "method not allowed", middleware.RequestIDOrUnknown(r))
	})

	RegisterRoutes(r, cfg, h)
	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, cfg *config.Config, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

		if h.Actions != nil {
			r.Route("/actions", func(r chi.Router) {
				r.With(middleware.RateLimit(h.RateLimiter)).Post("/", h.Actions.Dispatch)
				r.Get("/types", h.Actions.Types)
			})
		}

		if h.Toasts != nil {
			r.Route("/toasts", func(r chi.Router) {
				r.Get("/", h.Toasts.List)
				r.Get("/{key}", h.Toasts.Get)
				r.Delete("/{key}", h.Toasts.Dismiss)
				r.Post("/{key}/click", h.Toasts.Click)
			})
		}

		if h.Tasks != nil {
			r.Get("/tasks", h.Tasks.List)
			r.Delete("/tasks/{id}", h.Tasks.Cancel)
			r.Get("/watchers", h.Tasks.Watchers)
		}
	})

	if h.Stream != nil {
		r.Get("/ws/toasts", h.Stream.ServeHTTP)
	}

	// Health check routes (not versioned)
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	if h.MetricsHandler != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, h.MetricsHandler)
	}
}
