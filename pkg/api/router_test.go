package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/actiond/config"
	"github.com/goclaw/actiond/pkg/api/handlers"
	"github.com/goclaw/actiond/pkg/api/middleware"
	"github.com/goclaw/actiond/pkg/api/response"
	"github.com/goclaw/actiond/pkg/logger"
	"github.com/goclaw/actiond/pkg/metrics"
	"github.com/goclaw/actiond/pkg/notification"
	"github.com/goclaw/actiond/pkg/saga"
	"github.com/goclaw/actiond/pkg/toast"
)

type testEnv struct {
	cfg       *config.Config
	stack     *toast.Stack
	scheduler *saga.Scheduler
	metrics   *metrics.Manager
	handlers  *Handlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	log := logger.Discard()

	stack := toast.NewStack()
	s := saga.New(saga.WithLogger(log))
	n, err := notification.New(stack)
	require.NoError(t, err)
	require.NoError(t, n.Register(s))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})

	m := metrics.NewManager(metrics.DefaultConfig())
	return &testEnv{
		cfg:       cfg,
		stack:     stack,
		scheduler: s,
		metrics:   m,
		handlers: &Handlers{
			Actions: handlers.NewActionHandler(s, nil),
			Toasts:  handlers.NewToastHandler(stack),
			Tasks:   handlers.NewTaskHandler(s),
			Health: handlers.NewHealthHandler(handlers.WithLiveness(handlers.CheckerFunc(func(context.Context) error {
				return nil
			}))),
			Stream:         handlers.NewWebSocketHandler(log, stack, handlers.WebSocketConfig{}),
			Metrics:        m,
			MetricsHandler: m.Handler(),
			RateLimiter:    middleware.NewLimiter(1000, 1000),
		},
	}
}

func (e *testEnv) do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Discard(), env.handlers)
	require.NotNil(t, router)

	rec := env.do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestRegisterRoutes_HealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Discard(), env.handlers)

	for _, path := range []string{"/health", "/ready", "/status", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(t, router, http.MethodGet, path, "")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestRouter_DispatchedNotificationBecomesToast(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Discard(), env.handlers)

	rec := env.do(t, router, http.MethodPost, "/api/v1/actions",
		`{"type":"notification.action.add","payload":{"level":"error","message":"flash failed"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var list response.ListResponse[toast.Toast]
	require.Eventually(t, func() bool {
		rec := env.do(t, router, http.MethodGet, "/api/v1/toasts", "")
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &list) != nil {
			return false
		}
		return list.Count == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "flash failed", list.Items[0].Message)
	assert.Equal(t, toast.IntentDanger, list.Items[0].Intent)

	key := list.Items[0].Key
	assert.Equal(t, http.StatusNoContent, env.do(t, router, http.MethodDelete, "/api/v1/toasts/"+key, "").Code)
	assert.Empty(t, env.stack.Keys())

	rec = env.do(t, router, http.MethodGet, "/api/v1/watchers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notification")

	rec = env.do(t, router, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), `http_requests_total`)
}

func TestRouter_Errors(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Discard(), env.handlers)

	rec := env.do(t, router, http.MethodGet, "/api/v2/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), response.ErrCodeNotFound)

	rec = env.do(t, router, http.MethodPut, "/api/v1/toasts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), response.ErrCodeMethodNotAllowed)

	rec = env.do(t, router, http.MethodPost, "/api/v1/actions", `{"type":"made.up"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), response.ErrCodeUnknownAction)
}

func TestRouter_ActionRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.handlers.RateLimiter = middleware.NewLimiter(0.001, 1)
	router := NewRouter(env.cfg, logger.Discard(), env.handlers)

	body := `{"type":"app.action.didStart"}`
	assert.Equal(t, http.StatusAccepted, env.do(t, router, http.MethodPost, "/api/v1/actions", body).Code)
	rec := env.do(t, router, http.MethodPost, "/api/v1/actions", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), response.ErrCodeRateLimited)

	// reads are not limited
	assert.Equal(t, http.StatusOK, env.do(t, router, http.MethodGet, "/api/v1/actions/types", "").Code)
}
