package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `t.id, t.client_id, t.agent_id, t.title, t.description, t.tier, t.price_usd, t.saved_usd, t.status,
	t.payment_status, t.subscription_id, t.result, t.rating, t.review, t.created_at, t.completed_at`

func scanTask(row pgx.Row, extra ...any) (*models.Task, error) {
	var t models.Task
	dest := []any{&t.ID, &t.ClientID, &t.AgentID, &t.Title, &t.Description, &t.Tier, &t.PriceUSD, &t.SavedUSD, &t.Status,
		&t.PaymentStatus, &t.SubscriptionID, &t.Result, &t.Rating, &t.Review, &t.CreatedAt, &t.CompletedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *TaskRepo) Create(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	err := on(r.pool, tx).QueryRow(ctx, `
		INSERT INTO tasks (id, client_id, agent_id, title, description, tier, price_usd, saved_usd, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, t.ID, t.ClientID, t.AgentID, t.Title, t.Description, t.Tier, t.PriceUSD, t.SavedUSD, t.Status, t.PaymentStatus).Scan(&t.CreatedAt)
	return translate(err)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id))
}

func (r *TaskRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`, a.name, a.slug
		FROM tasks t JOIN agents a ON a.id = t.agent_id
		WHERE t.client_id = $1
		ORDER BY t.created_at DESC
	`, clientID)
	if err != nil {
		return nil, err
	}
	return collectNamedTasks(rows)
}

// ListByAgents returns tasks hired against any of the given agents.
func (r *TaskRepo) ListByAgents(ctx context.Context, agentIDs []uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`, a.name, a.slug
		FROM tasks t JOIN agents a ON a.id = t.agent_id
		WHERE t.agent_id = ANY($1)
		ORDER BY t.created_at DESC
	`, agentIDs)
	if err != nil {
		return nil, err
	}
	return collectNamedTasks(rows)
}

// List returns tasks for the admin view, newest first.
func (r *TaskRepo) List(ctx context.Context, f models.TaskFilter) ([]*models.Task, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("t.created_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("t.created_at <= $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = "WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, a.name, a.slug
		FROM tasks t JOIN agents a ON a.id = t.agent_id
		%s ORDER BY t.created_at DESC LIMIT $%d
	`, taskColumns, cond, len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectNamedTasks(rows)
}

func collectNamedTasks(rows pgx.Rows) ([]*models.Task, error) {
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		var name, slug string
		t, err := scanTask(rows, &name, &slug)
		if err != nil {
			return nil, err
		}
		t.AgentName, t.AgentSlug = name, slug
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkPaid funds a pending task and moves it to in_progress in one write, so
// payment_status and status can never disagree.
func (r *TaskRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, subscriptionID *uuid.UUID) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE tasks SET payment_status = 'paid', status = 'in_progress', subscription_id = $2
		WHERE id = $1 AND status = 'pending' AND payment_status = 'pending'
	`, id, subscriptionID))
}

// Complete records the terminal outcome of an in-progress task. Returns
// ErrStateChanged if the task already left in_progress.
func (r *TaskRepo) Complete(ctx context.Context, id uuid.UUID, status, result string) (*models.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks t SET status = $2, result = $3, completed_at = now()
		WHERE t.id = $1 AND t.status = 'in_progress'
		RETURNING `+taskColumns, id, status, result))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrStateChanged
	}
	return t, err
}

// SetReview stores the client's rating once.
func (r *TaskRepo) SetReview(ctx context.Context, tx pgx.Tx, id uuid.UUID, rating int, review string) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE tasks SET rating = $2, review = $3
		WHERE id = $1 AND status = 'completed' AND rating IS NULL
	`, id, rating, review))
}
