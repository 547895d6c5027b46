package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Health(t *testing.T) {
	live := true
	h := NewHealthHandler(WithLiveness(CheckerFunc(func(context.Context) error {
		if !live {
			return errors.New("scheduler stopped")
		}
		return nil
	})))

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	live = false
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "scheduler stopped")
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		storageErr error
		wantStatus int
		wantReady  bool
	}{
		{name: "all checks pass", wantStatus: http.StatusOK, wantReady: true},
		{name: "storage down", storageErr: errors.New("badger closed"), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(
				WithReadiness("scheduler", CheckerFunc(func(context.Context) error { return nil })),
				WithReadiness("storage", CheckerFunc(func(ctx context.Context) error {
					if _, ok := ctx.Deadline(); !ok {
						return errors.New("check has no deadline")
					}
					return tt.storageErr
				})),
			)

			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			require.Equal(t, tt.wantStatus, rec.Code)

			var body ReadyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantReady, body.Ready)
			assert.Equal(t, "ok", body.Checks["scheduler"])
			if tt.storageErr != nil {
				assert.Equal(t, tt.storageErr.Error(), body.Checks["storage"])
			} else {
				assert.Equal(t, "ok", body.Checks["storage"])
			}
		})
	}
}

func TestHealthHandler_Status(t *testing.T) {
	h := NewHealthHandler(
		WithReadiness("storage", CheckerFunc(func(context.Context) error { return nil })),
		WithStatus(func(context.Context) map[string]any {
			return map[string]any{"toasts_visible": 2}
		}),
	)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	build, ok := body["build"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "actiond", build["service"])
	assert.Equal(t, float64(2), body["toasts_visible"])
	assert.Equal(t, []any{"storage"}, body["checks"])
	assert.Contains(t, body, "uptime_seconds")
}
