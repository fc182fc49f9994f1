// Package services holds the fulfillment workflow: hiring and dispatching
// tasks, the gig assignment cycle, subscriptions and notifications.
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Notifier records in-app notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]string)
}

// lookup maps a store error from a single-row read onto the API taxonomy.
func lookup(err error, what string) error {
	if errors.Is(err, models.ErrNotFound) {
		return apierr.New(apierr.NotFound, what+" not found")
	}
	return apierr.Wrap(apierr.Internal, "internal error", err)
}

func internal(err error) error {
	var e *apierr.Error
	if errors.As(err, &e) {
		return err
	}
	return apierr.Wrap(apierr.Internal, "internal error", err)
}
