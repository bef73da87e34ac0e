package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"scribe/internal/auth"
	"scribe/internal/mailer"
	"scribe/internal/models"
	"scribe/internal/observability"
	"scribe/internal/repository"
	"scribe/internal/validation"
)

const (
	invalidCredentialsMessage = "Invalid email or password"
	timingDummyPassword       = "dummy-password-for-timing"
	resetDeliveryTimeout      = 30 * time.Second
)

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Email     string
	Token     string
	Principal auth.Principal
}

type AuthService struct {
	users     repository.UserRepository
	hasher    auth.PasswordHasher
	tokens    *auth.TokenCodec
	resets    *ResetTokenStore
	mailer    mailer.Mailer
	dummyHash string
	pending   sync.WaitGroup
}

// NewAuthService wires the account flows. It precomputes a hash that unknown
// logins are verified against so both failure paths cost the same.
func NewAuthService(
	users repository.UserRepository,
	hasher auth.PasswordHasher,
	tokens *auth.TokenCodec,
	resets *ResetTokenStore,
	m mailer.Mailer,
) (*AuthService, error) {
	dummy, err := hasher.Hash(timingDummyPassword)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		resets:    resets,
		mailer:    m,
		dummyHash: dummy,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := validation.NormalizeEmail(in.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, badRequest(err)
	}
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, badRequest(err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, badRequest(err)
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		observability.RecordAuthEvent("register", "email_in_use")
		return nil, models.NewEmailInUseError(email)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	observability.RecordAuthEvent("register", "success")
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	span, ctx := observability.NewSpan(ctx, "auth.login")
	defer span.End()

	email := validation.NormalizeEmail(in.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if user == nil {
		s.hasher.Verify(in.Password, s.dummyHash)
		observability.RecordAuthEvent("login", "failure")
		return nil, models.NewUnauthorizedError(invalidCredentialsMessage)
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		observability.RecordAuthEvent("login", "failure")
		return nil, models.NewUnauthorizedError(invalidCredentialsMessage)
	}

	p := auth.PrincipalFor(user)
	token, err := s.tokens.Sign(p)
	if err != nil {
		span.SetError(err)
		return nil, models.NewInternalError(err)
	}
	span.AddAttributes(attribute.Int("user.id", int(user.ID)))
	observability.RecordAuthEvent("login", "success")
	return &LoginResult{Email: user.Email, Token: token, Principal: p}, nil
}

// RequestPasswordReset never reports whether email belongs to an account.
// Only the lookup happens on the caller's path. Issuing and mailing run in the
// background, and unknown addresses do a comparable amount of throwaway work
// there instead.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	span, ctx := observability.NewSpan(ctx, "auth.request_password_reset")
	defer span.End()

	email = validation.NormalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		span.SetError(err)
		slog.ErrorContext(ctx, "password reset lookup failed", slog.String("error", err.Error()))
		return nil
	}

	s.pending.Add(1)
	go s.deliverReset(context.WithoutCancel(ctx), user)
	return nil
}

func (s *AuthService) deliverReset(ctx context.Context, user *models.User) {
	defer s.pending.Done()
	ctx, cancel := context.WithTimeout(ctx, resetDeliveryTimeout)
	defer cancel()

	if user == nil {
		_, _ = s.hasher.Hash(timingDummyPassword)
		if secret, err := newResetSecret(); err == nil {
			_ = Digest(secret)
		}
		observability.RecordAuthEvent("reset_request", "unknown")
		return
	}

	token, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "password reset issue failed",
			slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		return
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		slog.ErrorContext(ctx, "password reset delivery failed",
			slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
	}
	observability.RecordAuthEvent("reset_request", "issued")
}

// Wait blocks until background reset deliveries finish or ctx is done.
func (s *AuthService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyPasswordReset checks the new password before touching the token, so
// a rejected password leaves the token usable. The token is consumed in the
// same transaction that stores the new hash.
func (s *AuthService) ApplyPasswordReset(ctx context.Context, token, newPassword string) (*models.User, error) {
	span, ctx := observability.NewSpan(ctx, "auth.apply_password_reset")
	defer span.End()

	if err := validation.ValidatePassword(newPassword); err != nil {
		return nil, badRequest(err)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	userID, err := s.resets.Redeem(ctx, token, hash)
	if err != nil {
		if errors.Is(err, ErrResetUnknown) || errors.Is(err, ErrResetExpired) || errors.Is(err, ErrResetAlreadyUsed) {
			observability.RecordAuthEvent("reset_apply", "rejected")
			return nil, models.NewInvalidResetTokenError(err)
		}
		span.SetError(err)
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthEvent("reset_apply", "success")
	return user, nil
}
