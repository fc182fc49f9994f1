package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/services"
)

const maxCallbackBody = 1 << 20

// TaskAPI is the task workflow the handler drives; *services.TaskService
// satisfies it.
type TaskAPI interface {
	CreateTask(ctx context.Context, user *models.User, in services.CreateTaskInput) (*models.Task, error)
	UseSubscription(ctx context.Context, user *models.User, taskID, subID uuid.UUID) (*models.Task, error)
	CompleteFromCallback(ctx context.Context, in services.CallbackInput, secret string) (*models.Task, error)
	SubmitReview(ctx context.Context, user *models.User, taskID uuid.UUID, rating int, comment string) (*models.Review, error)
	GetTask(ctx context.Context, user *models.User, id uuid.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, user *models.User) ([]*models.Task, error)
}

// CallbackValidator checks an agent callback body before it is applied.
type CallbackValidator interface {
	ValidateCallback(raw []byte) error
}

// TaskHandler serves /api/tasks.
type TaskHandler struct {
	Tasks     TaskAPI
	Validator CallbackValidator
	Logger    *slog.Logger
}

type createTaskRequest struct {
	AgentID         string      `json:"agent_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Tier            models.Tier `json:"tier"`
	UseSubscription bool        `json:"use_subscription"`
}

// CreateTask handles POST /api/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decode(w, r, h.Logger, &req, "") {
		return
	}
	var agentID uuid.UUID
	if id := optionalID(req.AgentID); id != nil {
		agentID = *id
	}
	if req.Tier == "" {
		req.Tier = models.TierBasic
	}
	task, err := h.Tasks.CreateTask(r.Context(), middleware.UserFromCtx(r.Context()), services.CreateTaskInput{
		AgentID:         agentID,
		Title:           req.Title,
		Description:     req.Description,
		Tier:            req.Tier,
		UseSubscription: req.UseSubscription,
	})
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": task})
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.ListTasks(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tasks})
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "task")
	if !ok {
		return
	}
	task, err := h.Tasks.GetTask(r.Context(), middleware.UserFromCtx(r.Context()), id)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": task})
}

type reviewRequest struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment"`
}

// SubmitReview handles POST /api/tasks/{id}/review.
func (h *TaskHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "task")
	if !ok {
		return
	}
	var req reviewRequest
	if !decode(w, r, h.Logger, &req, "Rating 1-5 required") {
		return
	}
	review, err := h.Tasks.SubmitReview(r.Context(), middleware.UserFromCtx(r.Context()), id, req.Rating, req.Comment)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": review})
}

type useSubscriptionRequest struct {
	TaskID         string `json:"task_id" validate:"required,uuid"`
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
}

// UseSubscription handles POST /api/tasks/use-subscription.
func (h *TaskHandler) UseSubscription(w http.ResponseWriter, r *http.Request) {
	var req useSubscriptionRequest
	if !decode(w, r, h.Logger, &req, "task_id and subscription_id required") {
		return
	}
	task, err := h.Tasks.UseSubscription(r.Context(), middleware.UserFromCtx(r.Context()),
		uuid.MustParse(req.TaskID), uuid.MustParse(req.SubscriptionID))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": task})
}

type callbackRequest struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Result string `json:"result"`
}

// Callback handles POST /api/tasks/callback from asynchronous agents. The
// body is checked against the callback schema and the X-Webhook-Secret
// header against the agent's configured secret.
func (h *TaskHandler) Callback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		apierr.Write(w, h.Logger, apierr.New(apierr.InvalidArgument, "unreadable body"))
		return
	}
	if err := h.Validator.ValidateCallback(raw); err != nil {
		if errors.Is(err, services.ErrValidation) {
			apierr.Write(w, h.Logger, apierr.New(apierr.InvalidArgument, "task_id and result required"))
			return
		}
		apierr.Write(w, h.Logger, err)
		return
	}
	var req callbackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		apierr.Write(w, h.Logger, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		apierr.Write(w, h.Logger, apierr.New(apierr.NotFound, "Task not found"))
		return
	}

	task, err := h.Tasks.CompleteFromCallback(r.Context(), services.CallbackInput{
		TaskID: taskID,
		Status: req.Status,
		Result: req.Result,
	}, r.Header.Get("X-Webhook-Secret"))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	h.Logger.Info("task callback applied", "task_id", task.ID, "status", task.Status)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": task.Status})
}
