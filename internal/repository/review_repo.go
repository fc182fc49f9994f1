package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

type ReviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{pool: pool}
}

func (r *ReviewRepo) Create(ctx context.Context, tx pgx.Tx, rv *models.Review) error {
	err := on(r.pool, tx).QueryRow(ctx, `
		INSERT INTO reviews (id, task_id, agent_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rv.ID, rv.TaskID, rv.AgentID, rv.UserID, rv.Rating, rv.Comment).Scan(&rv.CreatedAt)
	return translate(err)
}

// RatingsForAgent returns every rating the agent has received. Run inside the
// review transaction so the new row is included.
func (r *ReviewRepo) RatingsForAgent(ctx context.Context, tx pgx.Tx, agentID uuid.UUID) ([]int, error) {
	rows, err := on(r.pool, tx).Query(ctx, `SELECT rating FROM reviews WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (r *ReviewRepo) ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rv.id, rv.task_id, rv.agent_id, rv.user_id, rv.rating, rv.comment, rv.created_at, u.name
		FROM reviews rv JOIN users u ON u.id = rv.user_id
		WHERE rv.agent_id = $1
		ORDER BY rv.created_at DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Review
	for rows.Next() {
		var rv models.Review
		if err := rows.Scan(&rv.ID, &rv.TaskID, &rv.AgentID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UserName); err != nil {
			return nil, err
		}
		out = append(out, &rv)
	}
	return out, rows.Err()
}
