package registry

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

// PublicStats are the marketplace counters shown on the landing page.
type PublicStats struct {
	Agents         int `json:"agents"`
	Gigs           int `json:"gigs"`
	Users          int `json:"users"`
	TasksCompleted int `json:"tasks_completed"`
}

// CreatorLedger is the raw revenue data of one creator's agents.
type CreatorLedger struct {
	Tasks               []*models.Task
	SubscriptionRevenue float64
}

// Repository holds the aggregate reads of the marketplace.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) PublicStats(ctx context.Context) (*PublicStats, error) {
	var s PublicStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM agents WHERE status = 'active' AND (claimed OR is_autonomous OR creator_id IS NOT NULL)),
			(SELECT count(*) FROM gigs),
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM tasks WHERE status = 'completed')
	`).Scan(&s.Agents, &s.Gigs, &s.Users, &s.TasksCompleted)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreatorLedger loads every task of the creator's agents, newest first, and
// the completed subscription payments made to them.
func (r *Repository) CreatorLedger(ctx context.Context, creatorID uuid.UUID) (*CreatorLedger, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.agent_id, t.title, t.status, t.price_usd, t.created_at
		FROM tasks t JOIN agents a ON a.id = t.agent_id
		WHERE a.creator_id = $1
		ORDER BY t.created_at DESC
	`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &CreatorLedger{Tasks: []*models.Task{}}
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.AgentID, &t.Title, &t.Status, &t.PriceUSD, &t.CreatedAt); err != nil {
			return nil, err
		}
		out.Tasks = append(out.Tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(p.amount_usd), 0)
		FROM payments p
		JOIN subscriptions s ON s.id = p.subscription_id
		JOIN agents a ON a.id = s.agent_id
		WHERE a.creator_id = $1 AND p.status = 'completed'
	`, creatorID).Scan(&out.SubscriptionRevenue)
	if err != nil {
		return nil, err
	}
	return out, nil
}
