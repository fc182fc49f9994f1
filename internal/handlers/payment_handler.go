package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/ledger"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
)

// PaymentAPI is the part of the ledger exposed over HTTP.
type PaymentAPI interface {
	CreatePayment(ctx context.Context, user *models.User, target ledger.Target) (*models.Payment, error)
	Verify(ctx context.Context, user *models.User, paymentID uuid.UUID, signature string) (*models.Payment, error)
	SOLPrice(ctx context.Context) float64
}

type PaymentHandler struct {
	Payments PaymentAPI
	Logger   *slog.Logger
}

func (h *PaymentHandler) SOLPrice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"price": h.Payments.SOLPrice(r.Context())})
}

type createPaymentRequest struct {
	TaskID         string `json:"task_id" validate:"omitempty,uuid"`
	SubscriptionID string `json:"subscription_id" validate:"omitempty,uuid"`
}

// Create opens a pending payment. The amount is taken from the target, never
// from the request.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decode(w, r, h.Logger, &req, "task_id or subscription_id required") {
		return
	}
	p, err := h.Payments.CreatePayment(r.Context(), middleware.UserFromCtx(r.Context()), ledger.Target{
		TaskID:         optionalID(req.TaskID),
		SubscriptionID: optionalID(req.SubscriptionID),
	})
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": p})
}

type verifyRequest struct {
	PaymentID   string `json:"payment_id" validate:"required,uuid"`
	TxSignature string `json:"tx_signature" validate:"required"`
}

func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, h.Logger, &req, "Missing fields") {
		return
	}
	p, err := h.Payments.Verify(r.Context(), middleware.UserFromCtx(r.Context()), uuid.MustParse(req.PaymentID), req.TxSignature)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "payment": p})
}
