package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/saga"
	"github.com/goclaw/actiond/pkg/toast"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})

	if w.Code != http.StatusAccepted {
		t.Errorf("JSON() status = %v, want %v", w.Code, http.StatusAccepted)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("JSON() Content-Type = %v, want application/json", ct)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if got["status"] != "accepted" {
		t.Errorf("unexpected body %v", got)
	}

	w = httptest.NewRecorder()
	JSON(w, http.StatusNoContent, nil)
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", w.Body.String())
	}
}

func TestList(t *testing.T) {
	w := httptest.NewRecorder()
	List[string](w, nil)

	var got ListResponse[string]
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if got.Items == nil || got.Count != 0 {
		t.Errorf("expected empty items, got %+v", got)
	}
	if w.Body.String() != "{\"items\":[],\"count\":0}\n" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusBadRequest, ErrCodeBadRequest, "bad", map[string]interface{}{"field": "type"}, "req-1")

	var got ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if got.Error.Code != ErrCodeBadRequest || got.Error.RequestID != "req-1" || got.Error.Details["field"] != "type" {
		t.Errorf("unexpected error body %+v", got)
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown action", fmt.Errorf("decode: %w", action.ErrUnknownType), http.StatusBadRequest, ErrCodeUnknownAction},
		{"invalid input", fmt.Errorf("%w: missing type", ErrInvalidInput), http.StatusBadRequest, ErrCodeBadRequest},
		{"toast missing", toast.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"task missing", saga.ErrTaskNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"no action", toast.ErrNoAction, http.StatusConflict, ErrCodeConflict},
		{"stopped", saga.ErrStopped, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, "req-2")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var got ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if got.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestErrorCodeFromStatus(t *testing.T) {
	if ErrorCodeFromStatus(http.StatusTooManyRequests) != ErrCodeRateLimited {
		t.Error("expected RATE_LIMITED for 429")
	}
	if ErrorCodeFromStatus(http.StatusTeapot) != ErrCodeInternalServer {
		t.Error("expected fallback code")
	}
}
