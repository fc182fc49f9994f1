package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

const subscriptionColumns = `s.id, s.user_id, s.agent_id, s.tier, s.tasks_per_month, s.tasks_used, s.price_usd, s.status,
	s.created_at, s.cancelled_at`

func scanSubscription(row pgx.Row, extra ...any) (*models.Subscription, error) {
	var s models.Subscription
	dest := []any{&s.ID, &s.UserID, &s.AgentID, &s.Tier, &s.TasksPerMonth, &s.TasksUsed, &s.PriceUSD, &s.Status,
		&s.CreatedAt, &s.CancelledAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *SubscriptionRepo) Create(ctx context.Context, tx pgx.Tx, s *models.Subscription) error {
	err := on(r.pool, tx).QueryRow(ctx, `
		INSERT INTO subscriptions (id, user_id, agent_id, tier, tasks_per_month, tasks_used, price_usd, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, s.ID, s.UserID, s.AgentID, s.Tier, s.TasksPerMonth, s.TasksUsed, s.PriceUSD, s.Status).Scan(&s.CreatedAt)
	return translate(err)
}

func (r *SubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions s WHERE s.id = $1`, id))
}

// GetActive returns the active subscription of a user to an agent.
func (r *SubscriptionRepo) GetActive(ctx context.Context, userID, agentID uuid.UUID) (*models.Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions s
		WHERE s.user_id = $1 AND s.agent_id = $2 AND s.status = 'active'
	`, userID, agentID))
}

func (r *SubscriptionRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`, a.name
		FROM subscriptions s JOIN agents a ON a.id = s.agent_id
		WHERE s.user_id = $1 AND s.status = 'active'
		ORDER BY s.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Subscription
	for rows.Next() {
		var name string
		s, err := scanSubscription(rows, &name)
		if err != nil {
			return nil, err
		}
		s.AgentName = name
		out = append(out, s)
	}
	return out, rows.Err()
}

// ConsumeQuota atomically takes one task from an active subscription.
// Returns ErrStateChanged when the quota is exhausted or the subscription is
// no longer active.
func (r *SubscriptionRepo) ConsumeQuota(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE subscriptions SET tasks_used = tasks_used + 1
		WHERE id = $1 AND status = 'active' AND tasks_used < tasks_per_month
	`, id))
}

// Activate flips a pending subscription to active. The partial unique index
// on (user_id, agent_id) rejects a second active subscription with ErrDuplicate.
func (r *SubscriptionRepo) Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE subscriptions SET status = 'active' WHERE id = $1 AND status = 'pending'
	`, id))
}

// Cancel ends an active subscription. A pending one stays payable, so a
// settlement already in flight can still activate it.
func (r *SubscriptionRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	return affected(r.pool.Exec(ctx, `
		UPDATE subscriptions SET status = 'cancelled', cancelled_at = now()
		WHERE id = $1 AND status = 'active'
	`, id))
}
