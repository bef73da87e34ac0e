package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"scribe/internal/models"
)

// ResetTokenRepository persists password reset tokens by digest.
type ResetTokenRepository interface {
	// Issue marks the user's outstanding tokens consumed and inserts t, atomically.
	Issue(ctx context.Context, t *models.ResetToken) error
	// ConsumeIfValid flips consumed for an unexpired, unconsumed token and
	// reports whether this call did it.
	ConsumeIfValid(ctx context.Context, digest string, now time.Time) (bool, error)
	// Redeem consumes the token and stores passwordHash on its user in one
	// transaction. It reports false, with nothing written, when the token is
	// not redeemable at now.
	Redeem(ctx context.Context, digest string, now time.Time, passwordHash string) (bool, error)
	// GetByDigest returns (nil, nil) when no token matches.
	GetByDigest(ctx context.Context, digest string) (*models.ResetToken, error)
	// DeleteExpired removes tokens that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type resetTokenRepository struct {
	db *gorm.DB
}

// NewResetTokenRepository returns a new ResetTokenRepository implementation.
func NewResetTokenRepository(db *gorm.DB) ResetTokenRepository {
	return &resetTokenRepository{db: db}
}

func (r *resetTokenRepository) Issue(ctx context.Context, t *models.ResetToken) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ResetToken{}).
			Where("user_id = ? AND consumed = ?", t.UserID, false).
			Update("consumed", true).Error; err != nil {
			return err
		}
		return tx.Create(t).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *resetTokenRepository) ConsumeIfValid(ctx context.Context, digest string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ResetToken{}).
		Where("token = ? AND consumed = ? AND expires_at > ?", digest, false, now).
		Update("consumed", true)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *resetTokenRepository) Redeem(ctx context.Context, digest string, now time.Time, passwordHash string) (bool, error) {
	won := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ResetToken{}).
			Where("token = ? AND consumed = ? AND expires_at > ?", digest, false, now).
			Update("consumed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}

		var t models.ResetToken
		if err := tx.Where("token = ?", digest).First(&t).Error; err != nil {
			return err
		}
		upd := tx.Model(&models.User{}).Where("id = ?", t.UserID).Update("password_hash", passwordHash)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return models.NewNotFoundError("User", t.UserID)
		}
		won = true
		return nil
	})
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return false, err
		}
		return false, models.NewInternalError(err)
	}
	return won, nil
}

func (r *resetTokenRepository) GetByDigest(ctx context.Context, digest string) (*models.ResetToken, error) {
	var t models.ResetToken
	if err := r.db.WithContext(ctx).Where("token = ?", digest).First(&t).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &t, nil
}

func (r *resetTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.ResetToken{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
