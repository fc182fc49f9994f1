package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
)

type SubscriptionAPI interface {
	Subscribe(ctx context.Context, user *models.User, agentID uuid.UUID, tier models.Tier) (*models.Subscription, *models.Payment, error)
	Check(ctx context.Context, user *models.User, agentID uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, user *models.User) ([]*models.Subscription, error)
	Cancel(ctx context.Context, user *models.User, id uuid.UUID) error
}

type SubscriptionHandler struct {
	Subscriptions SubscriptionAPI
	Logger        *slog.Logger
}

type subscribeRequest struct {
	AgentID string      `json:"agent_id" validate:"required,uuid"`
	Tier    models.Tier `json:"tier" validate:"required"`
}

// Subscribe opens a pending subscription together with the payment that
// activates it.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decode(w, r, h.Logger, &req, "agent_id and tier required") {
		return
	}
	sub, payment, err := h.Subscriptions.Subscribe(r.Context(), middleware.UserFromCtx(r.Context()), uuid.MustParse(req.AgentID), req.Tier)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"subscription": sub, "payment": payment})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Subscriptions.List(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": subs})
}

// Check answers {subscription: null} when the caller has no active plan.
func (h *SubscriptionHandler) Check(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(r.URL.Query().Get("agent_id"))
	if err != nil {
		apierr.Write(w, h.Logger, apierr.New(apierr.InvalidArgument, "agent_id required"))
		return
	}
	sub, err := h.Subscriptions.Check(r.Context(), middleware.UserFromCtx(r.Context()), agentID)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": sub})
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "subscription")
	if !ok {
		return
	}
	if err := h.Subscriptions.Cancel(r.Context(), middleware.UserFromCtx(r.Context()), id); err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}
