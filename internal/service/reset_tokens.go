package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"scribe/internal/auth"
	"scribe/internal/models"
	"scribe/internal/repository"
)

const resetSecretBytes = 32

var (
	ErrResetUnknown     = errors.New("reset token unknown")
	ErrResetExpired     = errors.New("reset token expired")
	ErrResetAlreadyUsed = errors.New("reset token already used")
)

// ResetTokenStore issues and redeems single-use password reset tokens. Only
// the SHA-256 digest of a token is ever persisted.
type ResetTokenStore struct {
	repo  repository.ResetTokenRepository
	ttl   time.Duration
	clock auth.Clock
}

func NewResetTokenStore(repo repository.ResetTokenRepository, ttl time.Duration, clock auth.Clock) *ResetTokenStore {
	if clock == nil {
		clock = auth.RealClock{}
	}
	return &ResetTokenStore{repo: repo, ttl: ttl, clock: clock}
}

// Issue creates a token for userID, superseding any the user still holds.
func (s *ResetTokenStore) Issue(ctx context.Context, userID uint) (string, error) {
	secret, err := newResetSecret()
	if err != nil {
		return "", models.NewInternalError(err)
	}
	row := &models.ResetToken{
		Token:     Digest(secret),
		UserID:    userID,
		ExpiresAt: s.clock.Now().Add(s.ttl),
	}
	if err := s.repo.Issue(ctx, row); err != nil {
		return "", err
	}
	return secret, nil
}

// Consume redeems token and returns its user without changing anything
// else. Concurrent callers race on a single conditional update, so at most
// one succeeds.
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, ErrResetUnknown
	}
	digest := Digest(token)
	now := s.clock.Now()

	won, err := s.repo.ConsumeIfValid(ctx, digest, now)
	if err != nil {
		return 0, err
	}
	return s.outcome(ctx, digest, now, won)
}

// Redeem consumes token and sets passwordHash on its user atomically. When
// the update fails the token stays redeemable. Concurrent callers race on a
// single conditional update, so at most one succeeds.
func (s *ResetTokenStore) Redeem(ctx context.Context, token, passwordHash string) (uint, error) {
	if token == "" {
		return 0, ErrResetUnknown
	}
	digest := Digest(token)
	now := s.clock.Now()

	won, err := s.repo.Redeem(ctx, digest, now, passwordHash)
	if err != nil {
		return 0, err
	}
	return s.outcome(ctx, digest, now, won)
}

func (s *ResetTokenStore) outcome(ctx context.Context, digest string, now time.Time, won bool) (uint, error) {
	row, err := s.repo.GetByDigest(ctx, digest)
	if err != nil {
		return 0, err
	}
	switch {
	case row == nil:
		return 0, ErrResetUnknown
	case won:
		return row.UserID, nil
	case !now.Before(row.ExpiresAt):
		return 0, ErrResetExpired
	default:
		return 0, ErrResetAlreadyUsed
	}
}

// Digest is the stored form of a reset token.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newResetSecret() (string, error) {
	b := make([]byte, resetSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Prune deletes tokens that have already expired.
func (s *ResetTokenStore) Prune(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.clock.Now())
}
