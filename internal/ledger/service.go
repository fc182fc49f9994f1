// Package ledger records payments against tasks and subscriptions and
// applies a confirmed settlement to its target.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/execution"
	"github.com/upmolt/backend/internal/metrics"
	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/settlement"
)

type Service interface {
	// Open records a pending payment for exactly one target. It runs on tx
	// when one is given so the caller can create the target alongside it.
	Open(ctx context.Context, tx pgx.Tx, userID uuid.UUID, target Target, amountUSD float64) (*models.Payment, error)
	CreatePayment(ctx context.Context, user *models.User, target Target) (*models.Payment, error)
	Verify(ctx context.Context, user *models.User, paymentID uuid.UUID, signature string) (*models.Payment, error)
	SOLPrice(ctx context.Context) float64
}

// Target is what a payment funds. Exactly one field is set.
type Target struct {
	TaskID         *uuid.UUID
	SubscriptionID *uuid.UUID
}

func (t Target) valid() bool { return (t.TaskID == nil) != (t.SubscriptionID == nil) }

type PaymentStore interface {
	Create(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID, signature string) error
}

type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, subscriptionID *uuid.UUID) error
}

type SubscriptionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type Verifier interface {
	Confirm(ctx context.Context, signature string) error
}

type Quoter interface {
	Price(ctx context.Context) float64
	ToSOL(ctx context.Context, usd float64) float64
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]string)
}

// Deps wires the ledger to its stores and the settlement provider.
type Deps struct {
	Pool           TxBeginner
	Payments       PaymentStore
	Tasks          TaskStore
	Subscriptions  SubscriptionStore
	Verifier       Verifier
	Quotes         Quoter
	Recipient      string
	InsertDispatch execution.InsertDispatchTxFunc
	Notifier       Notifier
	Logger         *slog.Logger
}

type service struct {
	Deps
}

func NewService(d Deps) Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &service{Deps: d}
}

var _ Service = (*service)(nil)

func (s *service) SOLPrice(ctx context.Context) float64 {
	return s.Quotes.Price(ctx)
}

func (s *service) Open(ctx context.Context, tx pgx.Tx, userID uuid.UUID, target Target, amountUSD float64) (*models.Payment, error) {
	if !target.valid() {
		return nil, apierr.New(apierr.InvalidArgument, "task_id or subscription_id required")
	}
	if amountUSD <= 0 {
		return nil, apierr.New(apierr.InvalidArgument, "Invalid amount")
	}
	p := &models.Payment{
		ID:             uuid.New(),
		UserID:         userID,
		TaskID:         target.TaskID,
		SubscriptionID: target.SubscriptionID,
		AmountUSD:      amountUSD,
		AmountSOL:      s.Quotes.ToSOL(ctx, amountUSD),
		Method:         models.PaymentMethodSOL,
		Reference:      settlement.NewReference(),
		Recipient:      s.Recipient,
		Status:         models.PaymentRecordPending,
	}
	if err := s.Payments.Create(ctx, tx, p); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "internal error", fmt.Errorf("create payment: %w", err))
	}
	s.Logger.Info("payment opened", "payment_id", p.ID, "user_id", userID, "amount_usd", amountUSD, "amount_sol", p.AmountSOL)
	return p, nil
}

// CreatePayment prices the payment from the target's stored price.
func (s *service) CreatePayment(ctx context.Context, user *models.User, target Target) (*models.Payment, error) {
	if !target.valid() {
		return nil, apierr.New(apierr.InvalidArgument, "task_id or subscription_id required")
	}
	var amount float64
	if target.TaskID != nil {
		t, err := s.Tasks.GetByID(ctx, *target.TaskID)
		if err != nil {
			return nil, lookup(err, "Task")
		}
		if t.ClientID != user.ID {
			return nil, apierr.New(apierr.PermissionDenied, "Not your task")
		}
		if t.PaymentStatus != models.PaymentStatusPending {
			return nil, apierr.New(apierr.Conflict, "Task is already paid")
		}
		amount = t.PriceUSD
	} else {
		sub, err := s.Subscriptions.GetByID(ctx, *target.SubscriptionID)
		if err != nil {
			return nil, lookup(err, "Subscription")
		}
		if sub.UserID != user.ID {
			return nil, apierr.New(apierr.PermissionDenied, "Not your subscription")
		}
		if sub.Status != models.SubscriptionStatusPending {
			return nil, apierr.New(apierr.Conflict, "Subscription is not awaiting payment")
		}
		amount = sub.PriceUSD
	}
	return s.Open(ctx, nil, user.ID, target, amount)
}

// Verify confirms the settlement signature with the provider and, in one
// transaction, completes the payment and funds its target. A funded task is
// enqueued for dispatch in the same transaction.
func (s *service) Verify(ctx context.Context, user *models.User, paymentID uuid.UUID, signature string) (*models.Payment, error) {
	if signature == "" {
		return nil, apierr.New(apierr.InvalidArgument, "Missing fields")
	}
	p, err := s.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, lookup(err, "Payment")
	}
	if p.UserID != user.ID {
		return nil, apierr.New(apierr.PermissionDenied, "Not your payment")
	}
	if p.Status != models.PaymentRecordPending {
		return nil, apierr.New(apierr.Conflict, "Payment already verified")
	}

	if err := s.Verifier.Confirm(ctx, signature); err != nil {
		metrics.PaymentsVerified.WithLabelValues("rejected").Inc()
		if errors.Is(err, settlement.ErrInvalidSignature) || errors.Is(err, settlement.ErrTxNotFound) || errors.Is(err, settlement.ErrTxFailed) {
			return nil, apierr.Wrap(apierr.FailedPrecondition, "Transaction not confirmed", err)
		}
		return nil, apierr.Wrap(apierr.Internal, "internal error", fmt.Errorf("confirm signature: %w", err))
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "internal error", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := s.Payments.Complete(ctx, tx, p.ID, signature); err != nil {
		switch {
		case errors.Is(err, models.ErrStateChanged):
			return nil, apierr.New(apierr.Conflict, "Payment already verified")
		case errors.Is(err, models.ErrDuplicate):
			return nil, apierr.New(apierr.Conflict, "Transaction already used")
		}
		return nil, apierr.Wrap(apierr.Internal, "internal error", fmt.Errorf("complete payment: %w", err))
	}
	if err := s.fund(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "internal error", fmt.Errorf("commit payment: %w", err))
	}

	p.Status = models.PaymentRecordCompleted
	p.TxSignature = &signature
	metrics.PaymentsVerified.WithLabelValues("confirmed").Inc()
	s.Logger.Info("payment verified", "payment_id", p.ID, "user_id", user.ID)
	s.Notifier.Notify(ctx, user.ID, models.NotificationPaymentReceived, "Payment Received",
		fmt.Sprintf("Your payment of $%.2f was confirmed.", p.AmountUSD), map[string]string{"payment_id": p.ID.String()})
	return p, nil
}

func (s *service) fund(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	if p.TaskID != nil {
		if err := s.Tasks.MarkPaid(ctx, tx, *p.TaskID, nil); err != nil {
			if errors.Is(err, models.ErrStateChanged) {
				return apierr.New(apierr.Conflict, "Task is already paid")
			}
			return apierr.Wrap(apierr.Internal, "internal error", fmt.Errorf("mark task paid: %w", err))
		}
		if err := s.InsertDispatch(ctx, tx, execution.DispatchTaskArgs{TaskID: *p.TaskID}); err != nil {
			return apierr.Wrap(apierr.Internal, "internal error", fmt.Errorf("enqueue dispatch: %w", err))
		}
		return nil
	}
	if err := s.Subscriptions.Activate(ctx, tx, *p.SubscriptionID); err != nil {
		switch {
		case errors.Is(err, models.ErrStateChanged):
			return apierr.New(apierr.Conflict, "Subscription is not awaiting payment")
		case errors.Is(err, models.ErrDuplicate):
			return apierr.New(apierr.Conflict, "Already subscribed to this agent")
		}
		return apierr.Wrap(apierr.Internal, "internal error", fmt.Errorf("activate subscription: %w", err))
	}
	s.Notifier.Notify(ctx, p.UserID, models.NotificationSubscriptionActivated, "Subscription Active",
		"Your subscription is now active.", map[string]string{"subscription_id": p.SubscriptionID.String()})
	return nil
}

func lookup(err error, what string) error {
	if errors.Is(err, models.ErrNotFound) {
		return apierr.New(apierr.NotFound, what+" not found")
	}
	return apierr.Wrap(apierr.Internal, "internal error", err)
}
