package repository

import (
	"context"

	"gorm.io/gorm"

	"scribe/internal/models"
)

// AttachmentRepository defines persistence operations for attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, a *models.Attachment) error
	GetByID(ctx context.Context, id uint) (*models.Attachment, error)
	ListByPost(ctx context.Context, postID uint) ([]models.Attachment, error)
	// StoredNames returns every stored name that a row references.
	StoredNames(ctx context.Context) ([]string, error)
}

type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository returns a new AttachmentRepository implementation.
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *attachmentRepository) GetByID(ctx context.Context, id uint) (*models.Attachment, error) {
	var a models.Attachment
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, wrapNotFound(err, "Attachment", id)
	}
	return &a, nil
}

func (r *attachmentRepository) ListByPost(ctx context.Context, postID uint) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).Order("id ASC").Find(&attachments).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return attachments, nil
}

func (r *attachmentRepository) StoredNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Model(&models.Attachment{}).Pluck("stored_name", &names).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return names, nil
}
