package repository

import (
	"context"

	"gorm.io/gorm"

	"scribe/internal/models"
	"scribe/internal/pagination"
)

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	// ListByUser pages the user's enabled notifications, newest first.
	ListByUser(ctx context.Context, userID uint, q pagination.Query) ([]models.Notification, int64, error)
	// Dismiss disables a notification owned by userID.
	Dismiss(ctx context.Context, id, userID uint) (*models.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository returns a new NotificationRepository implementation.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uint, q pagination.Query) ([]models.Notification, int64, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ? AND enabled = ?", userID, true)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	items := make([]models.Notification, 0, q.PageSize)
	if err := base().Order("created_at DESC, id DESC").Limit(q.PageSize).Offset(q.Offset()).Find(&items).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return items, total, nil
}

func (r *notificationRepository) Dismiss(ctx context.Context, id, userID uint) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
			return err
		}
		n.Enabled = false
		return tx.Model(&n).Update("enabled", false).Error
	})
	if err != nil {
		return nil, wrapNotFound(err, "Notification", id)
	}
	return &n, nil
}
