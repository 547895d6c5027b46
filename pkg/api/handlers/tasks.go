package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/actiond/pkg/api/middleware"
	"github.com/goclaw/actiond/pkg/api/response"
	"github.com/goclaw/actiond/pkg/saga"
)

// TaskSource is the scheduler introspection used by TaskHandler.
type TaskSource interface {
	Tasks(ctx context.Context) ([]saga.TaskInfo, error)
	History(ctx context.Context) ([]saga.TaskInfo, error)
	Cancel(ctx context.Context, id string) error
	Watchers() []saga.WatcherInfo
}

// TaskHandler exposes scheduler tasks and watchers.
type TaskHandler struct {
	tasks TaskSource
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(tasks TaskSource) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// List handles GET /api/v1/tasks. With ?history=true it returns the finished
// tasks instead of the live ones.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.tasks.Tasks
	if history, _ := strconv.ParseBool(r.URL.Query().Get("history")); history {
		list = h.tasks.History
	}
	infos, err := list(r.Context())
	if err != nil {
		response.HandleError(w, err, middleware.RequestIDOrUnknown(r))
		return
	}
	response.List(w, infos)
}

// Cancel handles DELETE /api/v1/tasks/{id}.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.HandleError(w, err, middleware.RequestIDOrUnknown(r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Watchers handles GET /api/v1/watchers.
func (h *TaskHandler) Watchers(w http.ResponseWriter, _ *http.Request) {
	response.List(w, h.tasks.Watchers())
}
