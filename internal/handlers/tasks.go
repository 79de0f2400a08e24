package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/matcenter/internal/models"
	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
)

// TaskServiceInterface exposes the protected task data
type TaskServiceInterface interface {
	Data() (*models.ProtectedData, error)
	Refresh(ctx context.Context) (*models.ProtectedData, error)
	ChangeTaskStatus(ctx context.Context, taskNumber int, status string) error
	SetHint(ctx context.Context, taskNumber int, hint string) error
}

// TaskHandler serves the task dashboard
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// TasksResponse is the dashboard payload
type TasksResponse struct {
	Tasks      []models.Task         `json:"tasks"`
	IsAdmin    bool                  `json:"is_admin"`
	Statistics models.TaskStatistics `json:"statistics"`
}

// ChangeStatusRequest sets the status of one task
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Р Н П От"`
}

// SetHintRequest replaces the hint of one task; an empty hint clears it
type SetHintRequest struct {
	Hint string `json:"hint" validate:"max=2000"`
}

func newTasksResponse(data *models.ProtectedData) TasksResponse {
	tasks := data.Tasks
	if tasks == nil {
		tasks = []models.Task{}
	}
	return TasksResponse{
		Tasks:      tasks,
		IsAdmin:    data.IsAdmin,
		Statistics: models.ComputeTaskStatistics(tasks),
	}
}

// List returns the loaded tasks with per-status counts
// @Summary List tasks
// @Produce json
// @Success 200 {object} TasksResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /tasks [get]
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Data()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newTasksResponse(data))
}

// Refresh reloads tasks from the data source
// @Summary Reload tasks
// @Produce json
// @Success 200 {object} TasksResponse
// @Failure 502 {object} pkghttp.ErrorResponse
// @Router /tasks/refresh [post]
func (h *TaskHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Refresh(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newTasksResponse(data))
}

// ChangeStatus updates a task status (admin only)
// @Summary Change task status
// @Accept json
// @Param number path int true "Task number"
// @Param request body ChangeStatusRequest true "New status"
// @Success 200 {object} map[string]string
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /tasks/{number}/status [put]
func (h *TaskHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	number, ok := taskNumber(w, r)
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangeTaskStatus(r.Context(), number, req.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Status updated"})
}

// SetHint stores a task hint (admin only)
// @Summary Set task hint
// @Accept json
// @Param number path int true "Task number"
// @Param request body SetHintRequest true "Hint text"
// @Success 200 {object} map[string]string
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /tasks/{number}/hint [put]
func (h *TaskHandler) SetHint(w http.ResponseWriter, r *http.Request) {
	number, ok := taskNumber(w, r)
	if !ok {
		return
	}

	var req SetHintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.Hint = strings.TrimSpace(req.Hint)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.SetHint(r.Context(), number, req.Hint); err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Hint saved"})
}

func taskNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n <= 0 {
		pkghttp.WriteBadRequest(w, "Task number must be a positive integer")
		return 0, false
	}
	return n, true
}
