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

type NotificationAPI interface {
	List(ctx context.Context, user *models.User) ([]*models.Notification, error)
	MarkRead(ctx context.Context, user *models.User, id *uuid.UUID) error
	UnreadCount(ctx context.Context, user *models.User) (int, error)
}

type NotificationHandler struct {
	Notifications NotificationAPI
	Logger        *slog.Logger
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ns, err := h.Notifications.List(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ns})
}

type markReadRequest struct {
	ID string `json:"id" validate:"omitempty,uuid"`
}

// MarkRead marks one notification read, or all of them when no id is sent.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if r.ContentLength != 0 && !decode(w, r, h.Logger, &req, "invalid notification id") {
		return
	}
	if err := h.Notifications.MarkRead(r.Context(), middleware.UserFromCtx(r.Context()), optionalID(req.ID)); err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *NotificationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.UnreadCount(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}
