// Package handlers provides HTTP request handlers.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/api/middleware"
	"github.com/goclaw/actiond/pkg/api/response"
	"github.com/goclaw/actiond/pkg/eventbus"
	"github.com/goclaw/actiond/pkg/logger"
)

// MaxActionBytes caps the size of a posted action document.
const MaxActionBytes = 64 << 10

// DispatchResponse acknowledges an accepted action.
type DispatchResponse struct {
	Type     action.Type `json:"type"`
	Accepted bool        `json:"accepted"`
}

// ActionHandler accepts wire actions over HTTP and dispatches them.
type ActionHandler struct {
	dispatcher eventbus.Dispatcher
	codec      *action.Codec
}

// NewActionHandler creates an action handler. A nil codec uses the default
// codec.
func NewActionHandler(dispatcher eventbus.Dispatcher, codec *action.Codec) *ActionHandler {
	if codec == nil {
		codec = action.DefaultCodec()
	}
	return &ActionHandler{dispatcher: dispatcher, codec: codec}
}

// Dispatch handles POST /api/v1/actions.
func (h *ActionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDOrUnknown(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxActionBytes))
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	a, err := h.codec.Decode(body)
	if err != nil {
		if !errors.Is(err, action.ErrUnknownType) {
			err = fmt.Errorf("%w: %v", response.ErrInvalidInput, err)
		}
		response.HandleError(w, err, requestID)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), a); err != nil {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "dispatch failed", "type", a.Type(), "error", err)
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusAccepted, DispatchResponse{Type: a.Type(), Accepted: true})
}

// Types handles GET /api/v1/actions/types.
func (h *ActionHandler) Types(w http.ResponseWriter, _ *http.Request) {
	response.List(w, h.codec.Types())
}
