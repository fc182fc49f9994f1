package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/models"
)

const notificationPageSize = 50

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

type NotificationService struct {
	Store  NotificationStore
	Logger *slog.Logger
}

var _ Notifier = (*NotificationService)(nil)

// Notify never fails the caller; a lost notification is only logged.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]string) {
	n := &models.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		Data:    data,
	}
	if err := s.Store.Create(ctx, n); err != nil {
		s.Logger.Warn("notification dropped", "user_id", userID, "type", typ, "error", err)
	}
}

func (s *NotificationService) List(ctx context.Context, user *models.User) ([]*models.Notification, error) {
	list, err := s.Store.ListRecent(ctx, user.ID, notificationPageSize)
	if err != nil {
		return nil, internal(err)
	}
	return list, nil
}

// MarkRead marks one notification, or all of them when id is nil.
func (s *NotificationService) MarkRead(ctx context.Context, user *models.User, id *uuid.UUID) error {
	if id == nil {
		if err := s.Store.MarkAllRead(ctx, user.ID); err != nil {
			return internal(err)
		}
		return nil
	}
	if err := s.Store.MarkRead(ctx, user.ID, *id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return apierr.New(apierr.NotFound, "Notification not found")
		}
		return internal(err)
	}
	return nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, user *models.User) (int, error) {
	n, err := s.Store.CountUnread(ctx, user.ID)
	if err != nil {
		return 0, internal(err)
	}
	return n, nil
}
