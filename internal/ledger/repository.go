package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

const paymentColumns = `id, user_id, task_id, subscription_id, amount_usd, amount_sol, method,
	reference, recipient, tx_signature, status, created_at, verified_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.TaskID, &p.SubscriptionID, &p.AmountUSD, &p.AmountSOL, &p.Method,
		&p.Reference, &p.Recipient, &p.TxSignature, &p.Status, &p.CreatedAt, &p.VerifiedAt)
	if err != nil {
		return nil, storeErr(err)
	}
	return &p, nil
}

// Create inserts a pending payment, inside tx when one is given.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	q := `INSERT INTO payments (id, user_id, task_id, subscription_id, amount_usd, amount_sol, method, reference, recipient, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`
	args := []any{p.ID, p.UserID, p.TaskID, p.SubscriptionID, p.AmountUSD, p.AmountSOL, p.Method, p.Reference, p.Recipient, p.Status}
	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(ctx, q, args...)
	} else {
		row = r.pool.QueryRow(ctx, q, args...)
	}
	return storeErr(row.Scan(&p.CreatedAt))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// Complete records the settlement signature on a pending payment. A
// signature already used by another payment fails with ErrDuplicate.
func (r *Repository) Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID, signature string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = 'completed', tx_signature = $2, verified_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, signature)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStateChanged
	}
	return nil
}

// Revenue sums completed payments.
func (r *Repository) Revenue(ctx context.Context) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount_usd), 0) FROM payments WHERE status = 'completed'`).Scan(&total)
	return total, storeErr(err)
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", models.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
