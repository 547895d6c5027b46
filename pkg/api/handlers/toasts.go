package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/actiond/pkg/api/middleware"
	"github.com/goclaw/actiond/pkg/api/response"
	"github.com/goclaw/actiond/pkg/toast"
)

// ToastStack is the part of the toast stack the HTTP surface drives.
type ToastStack interface {
	List() []toast.Toast
	Get(key string) (toast.Toast, bool)
	Click(key string) error
	Dismiss(key string)
}

// ToastHandler exposes the visible toasts.
type ToastHandler struct {
	stack ToastStack
}

// NewToastHandler creates a toast handler.
func NewToastHandler(stack ToastStack) *ToastHandler {
	return &ToastHandler{stack: stack}
}

// List handles GET /api/v1/toasts.
func (h *ToastHandler) List(w http.ResponseWriter, _ *http.Request) {
	response.List(w, h.stack.List())
}

// Get handles GET /api/v1/toasts/{key}.
func (h *ToastHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.stack.Get(chi.URLParam(r, "key"))
	if !ok {
		response.HandleError(w, toast.ErrNotFound, middleware.RequestIDOrUnknown(r))
		return
	}
	response.JSON(w, http.StatusOK, t)
}

// Click handles POST /api/v1/toasts/{key}/click.
func (h *ToastHandler) Click(w http.ResponseWriter, r *http.Request) {
	if err := h.stack.Click(chi.URLParam(r, "key")); err != nil {
		response.HandleError(w, err, middleware.RequestIDOrUnknown(r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dismiss handles DELETE /api/v1/toasts/{key}.
func (h *ToastHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := h.stack.Get(key); !ok {
		response.HandleError(w, toast.ErrNotFound, middleware.RequestIDOrUnknown(r))
		return
	}
	h.stack.Dismiss(key)
	w.WriteHeader(http.StatusNoContent)
}
