package admin

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

// Counts are the row counts behind the admin dashboard.
type Counts struct {
	Users          int
	Agents         int
	Tasks          int
	TasksThisMonth int
	NewUsersWeek   int
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Counts tallies users, agents and tasks. monthStart and weekAgo bound the
// recent-activity counters.
func (r *Repository) Counts(ctx context.Context, monthStart, weekAgo time.Time) (*Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM agents),
			(SELECT count(*) FROM tasks),
			(SELECT count(*) FROM tasks WHERE created_at >= $1),
			(SELECT count(*) FROM users WHERE created_at >= $2)
	`, monthStart, weekAgo).Scan(&c.Users, &c.Agents, &c.Tasks, &c.TasksThisMonth, &c.NewUsersWeek)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AgentStats lists every agent with its creator and completed-task revenue.
func (r *Repository) AgentStats(ctx context.Context) ([]*models.AgentStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.name, a.slug, a.status, a.featured, a.is_autonomous, a.claimed, a.price_usd,
			a.avg_rating, a.total_tasks, a.karma, a.created_at,
			COALESCE(u.name, ''), COALESCE(u.email, ''),
			COALESCE((SELECT sum(t.price_usd) FROM tasks t WHERE t.agent_id = a.id AND t.status = 'completed'), 0)
		FROM agents a LEFT JOIN users u ON u.id = a.creator_id
		ORDER BY a.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.AgentStats
	for rows.Next() {
		var s models.AgentStats
		if err := rows.Scan(&s.ID, &s.Name, &s.Slug, &s.Status, &s.Featured, &s.IsAutonomous, &s.Claimed, &s.PriceUSD,
			&s.AvgRating, &s.TotalTasks, &s.Karma, &s.CreatedAt,
			&s.CreatorName, &s.CreatorEmail, &s.Revenue); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
