// Package admin serves the role-gated platform overview and agent
// moderation.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/models"
)

const (
	ActionApprove   = "approve"
	ActionReject    = "reject"
	ActionFeature   = "feature"
	ActionUnfeature = "unfeature"
	ActionDelete    = "delete"

	taskListLimit = 200
)

type CountStore interface {
	Counts(ctx context.Context, monthStart, weekAgo time.Time) (*Counts, error)
	AgentStats(ctx context.Context) ([]*models.AgentStats, error)
}

type RevenueStore interface {
	Revenue(ctx context.Context) (float64, error)
}

type UserLister interface {
	ListWithSpend(ctx context.Context) ([]*models.UserSummary, error)
}

type TaskLister interface {
	List(ctx context.Context, f models.TaskFilter) ([]*models.Task, error)
}

// AgentModerator is the subset of the agent store moderation writes to.
type AgentModerator interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	SetFeatured(ctx context.Context, id uuid.UUID, featured bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	Repo       CountStore
	Ledger     RevenueStore
	UserStore  UserLister
	TaskStore  TaskLister
	AgentStore AgentModerator
	Logger     *slog.Logger
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func internal(err error) error {
	return apierr.Wrap(apierr.Internal, "internal error", err)
}

// Stats loads the dashboard counters and revenue concurrently.
func (s *Service) Stats(ctx context.Context) (*models.PlatformStats, error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	var (
		counts           *Counts
		revenue          float64
		errCount, errRev error
	)
	wg := conc.NewWaitGroup()
	wg.Go(func() { counts, errCount = s.Repo.Counts(ctx, monthStart, weekAgo) })
	wg.Go(func() { revenue, errRev = s.Ledger.Revenue(ctx) })
	wg.Wait()
	if err := errors.Join(errCount, errRev); err != nil {
		return nil, internal(fmt.Errorf("admin stats: %w", err))
	}
	return &models.PlatformStats{
		TotalRevenue:   revenue,
		TotalUsers:     counts.Users,
		TotalAgents:    counts.Agents,
		TotalTasks:     counts.Tasks,
		TasksThisMonth: counts.TasksThisMonth,
		NewUsersWeek:   counts.NewUsersWeek,
	}, nil
}

func (s *Service) Users(ctx context.Context) ([]*models.UserSummary, error) {
	users, err := s.UserStore.ListWithSpend(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("list users: %w", err))
	}
	if users == nil {
		users = []*models.UserSummary{}
	}
	return users, nil
}

func (s *Service) Agents(ctx context.Context) ([]*models.AgentStats, error) {
	agents, err := s.Repo.AgentStats(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("list agents: %w", err))
	}
	if agents == nil {
		agents = []*models.AgentStats{}
	}
	return agents, nil
}

// Tasks returns at most 200 tasks, newest first.
func (s *Service) Tasks(ctx context.Context, f models.TaskFilter) ([]*models.Task, error) {
	f.Limit = taskListLimit
	tasks, err := s.TaskStore.List(ctx, f)
	if err != nil {
		return nil, internal(fmt.Errorf("list tasks: %w", err))
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	return tasks, nil
}

// Moderate applies action to an agent. It returns nil for a deleted agent.
func (s *Service) Moderate(ctx context.Context, admin *models.User, id uuid.UUID, action string) (*models.Agent, error) {
	var err error
	switch action {
	case ActionApprove:
		err = s.AgentStore.SetStatus(ctx, id, models.AgentStatusActive)
	case ActionReject:
		err = s.AgentStore.SetStatus(ctx, id, models.AgentStatusRejected)
	case ActionFeature:
		err = s.AgentStore.SetFeatured(ctx, id, true)
	case ActionUnfeature:
		err = s.AgentStore.SetFeatured(ctx, id, false)
	case ActionDelete:
		err = s.AgentStore.Delete(ctx, id)
	default:
		return nil, apierr.New(apierr.InvalidArgument, "Invalid action")
	}
	if err != nil {
		if errors.Is(err, models.ErrStateChanged) || errors.Is(err, models.ErrNotFound) {
			return nil, apierr.New(apierr.NotFound, "Agent not found")
		}
		return nil, internal(fmt.Errorf("moderate agent: %w", err))
	}
	s.logger().Info("agent moderated", "agent_id", id, "action", action, "admin_id", admin.ID)
	if action == ActionDelete {
		return nil, nil
	}
	a, err := s.AgentStore.GetByID(ctx, id)
	if err != nil {
		return nil, internal(fmt.Errorf("reload agent: %w", err))
	}
	return a, nil
}
