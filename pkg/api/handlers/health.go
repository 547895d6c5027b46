package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goclaw/actiond/pkg/api/response"
	"github.com/goclaw/actiond/pkg/version"
)

const checkTimeout = 2 * time.Second

// Checker reports whether one dependency is usable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// StatusFunc contributes fields to the /status document.
type StatusFunc func(ctx context.Context) map[string]any

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithLiveness sets the check behind /health.
func WithLiveness(c Checker) HealthOption {
	return func(h *HealthHandler) { h.live = c }
}

// WithReadiness adds a named check to /ready.
func WithReadiness(name string, c Checker) HealthOption {
	return func(h *HealthHandler) { h.ready[name] = c }
}

// WithStatus adds fields to /status.
func WithStatus(fn StatusFunc) HealthOption {
	return func(h *HealthHandler) { h.status = append(h.status, fn) }
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	startedAt time.Time
	live      Checker
	ready     map[string]Checker
	status    []StatusFunc
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		startedAt: time.Now(),
		ready:     make(map[string]Checker),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.live != nil {
		if err := h.live.Check(r.Context()); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// ReadyResponse is the /ready document.
type ReadyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Ready handles the /ready endpoint (readiness probe). Checks run
// concurrently, each with its own deadline.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Ready: true, Checks: make(map[string]string, len(h.ready))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, c := range h.ready {
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			result := "ok"
			if err := c.Check(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			resp.Checks[name] = result
			if result != "ok" {
				resp.Ready = false
			}
		}(name, c)
	}
	wg.Wait()

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, code, resp)
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"build":          version.Info(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	for _, fn := range h.status {
		for k, v := range fn(r.Context()) {
			doc[k] = v
		}
	}
	keys := make([]string, 0, len(h.ready))
	for name := range h.ready {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	doc["checks"] = keys
	response.JSON(w, http.StatusOK, doc)
}
