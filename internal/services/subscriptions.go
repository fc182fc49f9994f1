package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/ledger"
	"github.com/upmolt/backend/internal/models"
)

type SubscriptionStore interface {
	Create(ctx context.Context, tx pgx.Tx, s *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetActive(ctx context.Context, userID, agentID uuid.UUID) (*models.Subscription, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

type AgentGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
}

type PaymentOpener interface {
	Open(ctx context.Context, tx pgx.Tx, userID uuid.UUID, target ledger.Target, amountUSD float64) (*models.Payment, error)
}

type SubscriptionService struct {
	Pool          TxBeginner
	Subscriptions SubscriptionStore
	Agents        AgentGetter
	Ledger        PaymentOpener
	Logger        *slog.Logger
}

// Subscribe creates a pending subscription together with the payment that
// activates it.
func (s *SubscriptionService) Subscribe(ctx context.Context, user *models.User, agentID uuid.UUID, tier models.Tier) (*models.Subscription, *models.Payment, error) {
	if agentID == uuid.Nil || tier == "" {
		return nil, nil, apierr.New(apierr.InvalidArgument, "Agent and tier required")
	}
	if !tier.Valid() {
		return nil, nil, apierr.New(apierr.InvalidArgument, "Invalid tier")
	}
	agent, err := s.Agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, nil, lookup(err, "Agent")
	}
	if _, err := s.Subscriptions.GetActive(ctx, user.ID, agentID); err == nil {
		return nil, nil, apierr.New(apierr.FailedPrecondition, "Already subscribed to this agent")
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, nil, internal(err)
	}

	plan, _ := PlanFor(agent, tier)
	sub := &models.Subscription{
		ID:            uuid.New(),
		UserID:        user.ID,
		AgentID:       agent.ID,
		Tier:          tier,
		TasksPerMonth: plan.TasksPerMonth,
		PriceUSD:      SubscriptionPrice(agent.PriceUSD, plan),
		Status:        models.SubscriptionStatusPending,
		AgentName:     agent.Name,
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := s.Subscriptions.Create(ctx, tx, sub); err != nil {
		return nil, nil, internal(fmt.Errorf("create subscription: %w", err))
	}
	payment, err := s.Ledger.Open(ctx, tx, user.ID, ledger.Target{SubscriptionID: &sub.ID}, sub.PriceUSD)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, internal(fmt.Errorf("commit subscription: %w", err))
	}
	s.Logger.Info("subscription opened", "subscription_id", sub.ID, "agent_id", agent.ID, "tier", tier, "price_usd", sub.PriceUSD)
	return sub, payment, nil
}

// Check returns the caller's active subscription to agentID, or nil.
func (s *SubscriptionService) Check(ctx context.Context, user *models.User, agentID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.Subscriptions.GetActive(ctx, user.ID, agentID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal(err)
	}
	return sub, nil
}

func (s *SubscriptionService) List(ctx context.Context, user *models.User) ([]*models.Subscription, error) {
	subs, err := s.Subscriptions.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, internal(err)
	}
	return subs, nil
}

func (s *SubscriptionService) Cancel(ctx context.Context, user *models.User, id uuid.UUID) error {
	sub, err := s.Subscriptions.GetByID(ctx, id)
	if err != nil {
		return lookup(err, "Subscription")
	}
	if sub.UserID != user.ID {
		return apierr.New(apierr.PermissionDenied, "Not your subscription")
	}
	if sub.Status != models.SubscriptionStatusActive {
		return apierr.New(apierr.Conflict, "Subscription is not active")
	}
	if err := s.Subscriptions.Cancel(ctx, id); err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return apierr.New(apierr.Conflict, "Subscription is not active")
		}
		return internal(err)
	}
	s.Logger.Info("subscription cancelled", "subscription_id", id)
	return nil
}
