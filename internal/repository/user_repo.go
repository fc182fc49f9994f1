package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, role, total_saved_usd, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.TotalSavedUSD, &u.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// AddSaved accrues the savings a client made by hiring an agent.
func (r *UserRepo) AddSaved(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount float64) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE users SET total_saved_usd = total_saved_usd + $2 WHERE id = $1
	`, id, amount))
}

func (r *UserRepo) PromoteToCreator(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET role = 'creator' WHERE id = $1 AND role <> 'creator'`, id)
	return err
}

// ListWithSpend returns every user with task count and completed-payment spend.
func (r *UserRepo) ListWithSpend(ctx context.Context) ([]*models.UserSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.email, u.name, u.role, u.total_saved_usd, u.created_at,
			(SELECT count(*) FROM tasks t WHERE t.client_id = u.id),
			COALESCE((SELECT sum(p.amount_usd) FROM payments p WHERE p.user_id = u.id AND p.status = 'completed'), 0)
		FROM users u
		ORDER BY u.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.UserSummary
	for rows.Next() {
		var s models.UserSummary
		if err := rows.Scan(&s.ID, &s.Email, &s.Name, &s.Role, &s.TotalSavedUSD, &s.CreatedAt, &s.TaskCount, &s.TotalSpent); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
