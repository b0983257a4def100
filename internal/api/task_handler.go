package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/service"
)

// TaskHandler handles task admission, cancellation, and queries.
type TaskHandler struct {
	tasks     *service.TaskService
	validator *validator.Validate
}

// NewTaskHandler creates a new TaskHandler with the given dependencies.
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		validator: validator.New(),
	}
}

// Create handles POST /tasks: admit a task, debiting its credit cost.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := getAccountIDFromContext(r)
	if !ok {
		RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateTaskRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.tasks.AdmitTask(r.Context(), accountID,
		domain.TaskType(req.Type), req.Priority, req.CorrelationID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusCreated, NewTaskResponse(task))
}

// Cancel handles DELETE /tasks/{id}: cancel a pending or processing task
// and refund its credit cost.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := getAccountIDFromContext(r)
	if !ok {
		RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	task, err := h.tasks.CancelTask(r.Context(), taskID, accountID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(task))
}

// Get handles GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := getAccountIDFromContext(r)
	if !ok {
		RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	task, err := h.tasks.GetTask(r.Context(), taskID, accountID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(task))
}

// ListActive handles GET /tasks: the account's pending and processing
// tasks.
func (h *TaskHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	accountID, ok := getAccountIDFromContext(r)
	if !ok {
		RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	tasks, err := h.tasks.ListActive(r.Context(), accountID)
	if err != nil {
		slog.Error("failed to list active tasks", "error", err, "account_id", accountID)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, NewTaskListResponse(tasks))
}

// ListHistory handles GET /tasks/history with page/page_size parameters.
func (h *TaskHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := getAccountIDFromContext(r)
	if !ok {
		RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	tasks, err := h.tasks.ListHistory(r.Context(), accountID, page, pageSize)
	if err != nil {
		slog.Error("failed to list task history", "error", err, "account_id", accountID)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list task history")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, NewTaskListResponse(tasks))
}
