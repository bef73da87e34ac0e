package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scribe/internal/auth"
	"scribe/internal/models"
	"scribe/internal/notifications"
	"scribe/internal/repository"
	"scribe/internal/storage"
	"scribe/internal/testutil"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testMaxBytes = 1024
)

var testEpoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	db          *gorm.DB
	clock       *auth.FixedClock
	mail        *testutil.CaptureMailer
	users       repository.UserRepository
	tokens      *auth.TokenCodec
	resets      *ResetTokenStore
	auth        *AuthService
	notes       *NotificationService
	posts       *PostService
	attachments *AttachmentService
	store       *storage.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:    testutil.NewSQLiteDB(t),
		clock: &auth.FixedClock{T: testEpoch},
		mail:  &testutil.CaptureMailer{},
	}
	h.users = repository.NewUserRepository(h.db)

	var err error
	h.tokens, err = auth.NewTokenCodec(testSecret, 300*time.Second, "scribe-test", h.clock)
	require.NoError(t, err)

	h.resets = NewResetTokenStore(repository.NewResetTokenRepository(h.db), 30*time.Minute, h.clock)
	h.auth, err = NewAuthService(h.users, auth.NewArgon2Hasher(auth.LowCostParams), h.tokens, h.resets, h.mail)
	require.NoError(t, err)

	h.notes = NewNotificationService(repository.NewNotificationRepository(h.db), notifications.NewNotifier(nil), 50)
	h.posts = NewPostService(repository.NewPostRepository(h.db), h.notes, 50)

	h.store, err = storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	h.attachments = NewAttachmentService(h.posts, repository.NewAttachmentRepository(h.db), h.store, testMaxBytes, h.clock)
	return h
}

// register creates an account and returns its principal.
func (h *harness) register(t *testing.T, email string) auth.Principal {
	t.Helper()
	u, err := h.auth.Register(context.Background(), RegisterInput{Email: email, Name: "Tester", Password: "passw0rd!"})
	require.NoError(t, err)
	return auth.PrincipalFor(u)
}

func (h *harness) admin(t *testing.T, email string) auth.Principal {
	t.Helper()
	p := h.register(t, email)
	require.NoError(t, h.users.UpdateRole(context.Background(), p.UserID, models.RoleAdmin))
	p.Role = models.RoleAdmin
	return p
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := models.AsAppError(err)
	require.Equal(t, code, appErr.Code, "unexpected error: %v", err)
}

// requestReset asks for a reset and waits for background delivery.
func (h *harness) requestReset(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, h.auth.RequestPasswordReset(context.Background(), email))
	require.NoError(t, h.auth.Wait(context.Background()))
}
