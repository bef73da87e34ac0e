package repository

import (
	"context"

	"gorm.io/gorm"

	"scribe/internal/cache"
	"scribe/internal/models"
	"scribe/internal/pagination"
)

// Visibility restricts which posts a listing may return.
type Visibility struct {
	// All lifts the enabled filter (ADMIN).
	All bool
	// ViewerID additionally admits the viewer's own disabled posts.
	ViewerID uint
}

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	SetEnabled(ctx context.Context, id uint, enabled bool) error
	// Delete removes the post and its attachment rows. Blobs are untouched.
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, q pagination.Query, f pagination.Filter, vis Visibility) ([]models.Post, int64, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository returns a new PostRepository implementation.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
			return wrapNotFound(err, "Post", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	res := r.db.WithContext(ctx).Model(post).Select("title", "content", "updated_at").Updates(post)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", post.ID)
	}
	cache.InvalidatePost(ctx, post.ID)
	return nil
}

func (r *postRepository) SetEnabled(ctx context.Context, id uint, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	cache.InvalidatePost(ctx, id)
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return wrapNotFound(err, "Post", id)
	}
	cache.InvalidatePost(ctx, id)
	return nil
}

func (r *postRepository) List(ctx context.Context, q pagination.Query, f pagination.Filter, vis Visibility) ([]models.Post, int64, error) {
	scope := r.db.WithContext(ctx).Model(&models.Post{}).Scopes(visible(vis), matching(f))

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	posts := make([]models.Post, 0, q.PageSize)
	if total == 0 || int64(q.Offset()) >= total {
		return posts, total, nil
	}

	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Scopes(visible(vis), matching(f)).
		Order(q.OrderClause()).
		Limit(q.PageSize).
		Offset(q.Offset()).
		Find(&posts).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

func visible(vis Visibility) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case vis.All:
			return db
		case vis.ViewerID != 0:
			return db.Where("(enabled = ? OR author_id = ?)", true, vis.ViewerID)
		default:
			return db.Where("enabled = ?", true)
		}
	}
}

func matching(f pagination.Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Title != "" {
			db = db.Where(`LOWER(title) LIKE ? ESCAPE '\'`, pagination.LikePattern(f.Title))
		}
		if f.Content != "" {
			db = db.Where(`LOWER(content) LIKE ? ESCAPE '\'`, pagination.LikePattern(f.Content))
		}
		return db
	}
}
