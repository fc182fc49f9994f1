package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/execution"
	"github.com/upmolt/backend/internal/metrics"
	"github.com/upmolt/backend/internal/models"
)

type TaskStore interface {
	Create(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Task, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, subscriptionID *uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, status, result string) (*models.Task, error)
	SetReview(ctx context.Context, tx pgx.Tx, id uuid.UUID, rating int, review string) error
}

type TaskAgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	IncrementTotalTasks(ctx context.Context, id uuid.UUID) error
	UpdateRatingStats(ctx context.Context, tx pgx.Tx, id uuid.UUID, avg float64, count int) error
}

type QuotaStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetActive(ctx context.Context, userID, agentID uuid.UUID) (*models.Subscription, error)
	ConsumeQuota(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type ReviewStore interface {
	Create(ctx context.Context, tx pgx.Tx, r *models.Review) error
	RatingsForAgent(ctx context.Context, tx pgx.Tx, agentID uuid.UUID) ([]int, error)
}

type SavingsStore interface {
	AddSaved(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount float64) error
}

type TaskDispatcher interface {
	Dispatch(ctx context.Context, agent *models.Agent, task *models.Task) (execution.Outcome, error)
}

// TaskService runs the task state machine: pending, in_progress, then
// completed or failed.
type TaskService struct {
	Pool           TxBeginner
	Tasks          TaskStore
	Agents         TaskAgentStore
	Subscriptions  QuotaStore
	Reviews        ReviewStore
	Users          SavingsStore
	Dispatcher     TaskDispatcher
	InsertDispatch execution.InsertDispatchTxFunc
	Notifier       Notifier
	Logger         *slog.Logger
}

var _ execution.TaskProcessor = (*TaskService)(nil)

type CreateTaskInput struct {
	AgentID         uuid.UUID
	Title           string
	Description     string
	Tier            models.Tier
	UseSubscription bool
}

// CreateTask prices and records a hire. With UseSubscription the task is
// funded from the caller's active subscription in the same transaction;
// otherwise it waits for a verified payment.
func (s *TaskService) CreateTask(ctx context.Context, user *models.User, in CreateTaskInput) (*models.Task, error) {
	if in.AgentID == uuid.Nil || strings.TrimSpace(in.Title) == "" {
		return nil, apierr.New(apierr.InvalidArgument, "Agent and title required")
	}
	tier := in.Tier
	if tier == "" {
		tier = models.TierBasic
	}
	if !tier.Valid() {
		return nil, apierr.New(apierr.InvalidArgument, "Invalid tier")
	}
	agent, err := s.Agents.GetByID(ctx, in.AgentID)
	if err != nil {
		return nil, lookup(err, "Agent")
	}
	if agent.Status != models.AgentStatusActive {
		return nil, apierr.New(apierr.FailedPrecondition, "Agent is not available for hire")
	}

	var sub *models.Subscription
	if in.UseSubscription {
		sub, err = s.Subscriptions.GetActive(ctx, user.ID, agent.ID)
		if errors.Is(err, models.ErrNotFound) {
			return nil, apierr.New(apierr.FailedPrecondition, "No active subscription")
		}
		if err != nil {
			return nil, internal(err)
		}
		if sub.Remaining() == 0 {
			return nil, apierr.New(apierr.FailedPrecondition, "No tasks remaining")
		}
	}

	price, saved := TaskPrice(agent, tier)
	task := &models.Task{
		ID:            uuid.New(),
		ClientID:      user.ID,
		AgentID:       agent.ID,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Tier:          tier,
		PriceUSD:      price,
		SavedUSD:      saved,
		Status:        models.TaskStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := s.Tasks.Create(ctx, tx, task); err != nil {
		return nil, internal(fmt.Errorf("create task: %w", err))
	}
	if saved > 0 {
		if err := s.Users.AddSaved(ctx, tx, user.ID, saved); err != nil {
			return nil, internal(fmt.Errorf("accrue savings: %w", err))
		}
	}
	funding := "payment"
	if sub != nil {
		if err := s.fundFromSubscription(ctx, tx, task, sub.ID); err != nil {
			return nil, err
		}
		funding = "subscription"
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, internal(fmt.Errorf("commit task: %w", err))
	}

	if err := s.Agents.IncrementTotalTasks(ctx, agent.ID); err != nil {
		s.Logger.Warn("increment agent task count", "agent_id", agent.ID, "error", err)
	}
	metrics.TasksCreated.WithLabelValues(funding).Inc()
	if agent.CreatorID != nil {
		s.Notifier.Notify(ctx, *agent.CreatorID, models.NotificationTaskCreated, "New Task Received",
			fmt.Sprintf("%s was hired for %q.", agent.Name, task.Title), map[string]string{"task_id": task.ID.String()})
	}
	s.Logger.Info("task created", "task_id", task.ID, "agent_id", agent.ID, "tier", tier, "funding", funding)
	return task, nil
}

// UseSubscription funds an existing pending task from one of the caller's
// active subscriptions.
func (s *TaskService) UseSubscription(ctx context.Context, user *models.User, taskID, subID uuid.UUID) (*models.Task, error) {
	task, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, lookup(err, "Task")
	}
	if task.ClientID != user.ID {
		return nil, apierr.New(apierr.PermissionDenied, "Not your task")
	}
	if task.PaymentStatus != models.PaymentStatusPending {
		return nil, apierr.New(apierr.Conflict, "Task is already paid")
	}
	sub, err := s.Subscriptions.GetByID(ctx, subID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, internal(err)
	}
	if sub == nil || sub.UserID != user.ID || sub.Status != models.SubscriptionStatusActive {
		return nil, apierr.New(apierr.FailedPrecondition, "No active subscription")
	}
	if sub.AgentID != task.AgentID {
		return nil, apierr.New(apierr.InvalidArgument, "Subscription does not cover this agent")
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)
	if err := s.fundFromSubscription(ctx, tx, task, sub.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, internal(fmt.Errorf("commit: %w", err))
	}
	metrics.TasksCreated.WithLabelValues("subscription").Inc()
	return task, nil
}

// fundFromSubscription takes one task from the quota, marks the task paid and
// enqueues its dispatch, all on tx.
func (s *TaskService) fundFromSubscription(ctx context.Context, tx pgx.Tx, task *models.Task, subID uuid.UUID) error {
	if err := s.Subscriptions.ConsumeQuota(ctx, tx, subID); err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return apierr.New(apierr.FailedPrecondition, "No tasks remaining")
		}
		return internal(fmt.Errorf("consume quota: %w", err))
	}
	if err := s.Tasks.MarkPaid(ctx, tx, task.ID, &subID); err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return apierr.New(apierr.Conflict, "Task is already paid")
		}
		return internal(fmt.Errorf("mark paid: %w", err))
	}
	if err := s.InsertDispatch(ctx, tx, execution.DispatchTaskArgs{TaskID: task.ID}); err != nil {
		return internal(fmt.Errorf("enqueue dispatch: %w", err))
	}
	task.Status = models.TaskStatusInProgress
	task.PaymentStatus = models.PaymentStatusPaid
	task.SubscriptionID = &subID
	return nil
}

// ProcessTask dispatches a funded task and records the outcome. Backend
// errors become a failed task; only store errors are returned.
func (s *TaskService) ProcessTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.Tasks.GetByID(ctx, taskID)
	if errors.Is(err, models.ErrNotFound) {
		s.Logger.Warn("dispatch for missing task", "task_id", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task.Status != models.TaskStatusInProgress {
		s.Logger.Info("task not in progress, skipping dispatch", "task_id", taskID, "status", task.Status)
		return nil
	}

	var out execution.Outcome
	agent, err := s.Agents.GetByID(ctx, task.AgentID)
	if err == nil {
		out, err = s.Dispatcher.Dispatch(ctx, agent, task)
	}
	if err != nil {
		out = execution.Outcome{Status: models.TaskStatusFailed, Result: execution.FailureResult(err.Error())}
	}
	if out.Async {
		s.Logger.Info("task awaiting agent callback", "task_id", taskID)
		return nil
	}

	updated, err := s.Tasks.Complete(ctx, taskID, out.Status, out.Result)
	if errors.Is(err, models.ErrStateChanged) {
		s.Logger.Info("task finished elsewhere", "task_id", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	s.notifyFinished(ctx, updated)
	return nil
}

type CallbackInput struct {
	TaskID uuid.UUID
	Status string
	Result string
}

// CompleteFromCallback applies an agent's asynchronous result. Only a task
// still in progress on a webhook agent accepts it.
func (s *TaskService) CompleteFromCallback(ctx context.Context, in CallbackInput, secret string) (*models.Task, error) {
	task, err := s.Tasks.GetByID(ctx, in.TaskID)
	if err != nil {
		return nil, lookup(err, "Task")
	}
	agent, err := s.Agents.GetByID(ctx, task.AgentID)
	if err != nil {
		return nil, lookup(err, "Agent")
	}
	hook, ok := agent.Backend().(models.WebhookBackend)
	if !ok {
		metrics.TaskCallbacks.WithLabelValues("rejected").Inc()
		return nil, apierr.New(apierr.Conflict, "Task is not awaiting a callback")
	}
	if hook.Secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(hook.Secret)) != 1 {
		metrics.TaskCallbacks.WithLabelValues("rejected").Inc()
		return nil, apierr.New(apierr.Unauthenticated, "Invalid webhook secret")
	}
	if task.Status != models.TaskStatusInProgress {
		metrics.TaskCallbacks.WithLabelValues("conflict").Inc()
		return nil, apierr.New(apierr.Conflict, "Task is not in_progress")
	}

	status := models.TaskStatusCompleted
	if in.Status == models.TaskStatusFailed {
		status = models.TaskStatusFailed
	}
	updated, err := s.Tasks.Complete(ctx, task.ID, status, in.Result)
	if errors.Is(err, models.ErrStateChanged) {
		metrics.TaskCallbacks.WithLabelValues("conflict").Inc()
		return nil, apierr.New(apierr.Conflict, "Task is not in_progress")
	}
	if err != nil {
		return nil, internal(fmt.Errorf("complete task: %w", err))
	}
	metrics.TaskCallbacks.WithLabelValues("accepted").Inc()
	s.notifyFinished(ctx, updated)
	return updated, nil
}

func (s *TaskService) notifyFinished(ctx context.Context, t *models.Task) {
	title, msg := "Task Completed!", fmt.Sprintf("Your task %q has been completed.", t.Title)
	if t.Status == models.TaskStatusFailed {
		title, msg = "Task Failed", fmt.Sprintf("Your task %q failed.", t.Title)
	}
	s.Notifier.Notify(ctx, t.ClientID, models.NotificationTaskCompleted, title, msg, map[string]string{"task_id": t.ID.String()})
	s.Logger.Info("task finished", "task_id", t.ID, "status", t.Status)
}

// SubmitReview rates a completed task once and refreshes the agent's rating.
func (s *TaskService) SubmitReview(ctx context.Context, user *models.User, taskID uuid.UUID, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, apierr.New(apierr.InvalidArgument, "Rating 1-5 required")
	}
	task, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, lookup(err, "Task")
	}
	if task.ClientID != user.ID {
		return nil, apierr.New(apierr.PermissionDenied, "Not your task")
	}
	if task.Status != models.TaskStatusCompleted {
		return nil, apierr.New(apierr.FailedPrecondition, "Only completed tasks can be reviewed")
	}
	if task.Rating != nil {
		return nil, apierr.New(apierr.AlreadyExists, "Task already reviewed")
	}

	review := &models.Review{
		ID:      uuid.New(),
		TaskID:  task.ID,
		AgentID: task.AgentID,
		UserID:  user.ID,
		Rating:  rating,
		Comment: comment,
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := s.Reviews.Create(ctx, tx, review); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, apierr.New(apierr.AlreadyExists, "Task already reviewed")
		}
		return nil, internal(fmt.Errorf("create review: %w", err))
	}
	if err := s.Tasks.SetReview(ctx, tx, task.ID, rating, comment); err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return nil, apierr.New(apierr.AlreadyExists, "Task already reviewed")
		}
		return nil, internal(fmt.Errorf("set review: %w", err))
	}
	ratings, err := s.Reviews.RatingsForAgent(ctx, tx, task.AgentID)
	if err != nil {
		return nil, internal(fmt.Errorf("load ratings: %w", err))
	}
	if err := s.Agents.UpdateRatingStats(ctx, tx, task.AgentID, AverageRating(ratings), len(ratings)); err != nil {
		return nil, internal(fmt.Errorf("update rating: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, internal(fmt.Errorf("commit review: %w", err))
	}

	if agent, err := s.Agents.GetByID(ctx, task.AgentID); err == nil && agent.CreatorID != nil {
		s.Notifier.Notify(ctx, *agent.CreatorID, models.NotificationTaskReviewed, "New Review",
			fmt.Sprintf("%s received a %d-star review.", agent.Name, rating), map[string]string{"task_id": task.ID.String()})
	}
	return review, nil
}

// GetTask is visible to the client and to the agent's creator.
func (s *TaskService) GetTask(ctx context.Context, user *models.User, id uuid.UUID) (*models.Task, error) {
	task, err := s.Tasks.GetByID(ctx, id)
	if err != nil {
		return nil, lookup(err, "Task")
	}
	if task.ClientID == user.ID {
		return task, nil
	}
	agent, err := s.Agents.GetByID(ctx, task.AgentID)
	if err == nil && agent.OwnedBy(user.ID) {
		return task, nil
	}
	return nil, apierr.New(apierr.PermissionDenied, "Not your task")
}

func (s *TaskService) ListTasks(ctx context.Context, user *models.User) ([]*models.Task, error) {
	tasks, err := s.Tasks.ListByClient(ctx, user.ID)
	if err != nil {
		return nil, internal(err)
	}
	return tasks, nil
}
