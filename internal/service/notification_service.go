package service

import (
	"context"
	"log/slog"

	"scribe/internal/auth"
	"scribe/internal/models"
	"scribe/internal/notifications"
	"scribe/internal/pagination"
	"scribe/internal/repository"
)

type NotificationService struct {
	repo        repository.NotificationRepository
	notifier    *notifications.Notifier
	maxPageSize int
}

func NewNotificationService(repo repository.NotificationRepository, notifier *notifications.Notifier, maxPageSize int) *NotificationService {
	return &NotificationService{repo: repo, notifier: notifier, maxPageSize: maxPageSize}
}

// Notify stores a notification for userID and announces it. Publishing is
// best effort.
func (s *NotificationService) Notify(ctx context.Context, userID uint, title, content string) (*models.Notification, error) {
	n := &models.Notification{UserID: userID, Title: title, Content: content, Enabled: true}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	if err := s.notifier.PublishCreated(ctx, n); err != nil {
		slog.WarnContext(ctx, "notification publish failed",
			slog.Uint64("notification_id", uint64(n.ID)), slog.String("error", err.Error()))
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, p auth.Principal, raw pagination.Raw) (models.PageResponse[models.Notification], error) {
	var empty models.PageResponse[models.Notification]
	if !p.IsAuthenticated() {
		return empty, models.NewUnauthorizedError("Authentication required")
	}
	q, _, err := pagination.Normalize(raw, s.maxPageSize)
	if err != nil {
		return empty, err
	}
	items, total, err := s.repo.ListByUser(ctx, p.UserID, q)
	if err != nil {
		return empty, err
	}
	return pagination.NewPage(items, q, total), nil
}

func (s *NotificationService) Dismiss(ctx context.Context, p auth.Principal, id uint) (*models.Notification, error) {
	if !p.IsAuthenticated() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	return s.repo.Dismiss(ctx, id, p.UserID)
}
