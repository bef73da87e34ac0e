package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/auth"
	"scribe/internal/config"
	"scribe/internal/models"
	"scribe/internal/repository"
	"scribe/internal/testutil"
)

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	hasher := auth.NewArgon2Hasher(auth.LowCostParams)

	t.Run("disabled without email", func(t *testing.T) {
		users := repository.NewUserRepository(testutil.NewSQLiteDB(t))
		require.NoError(t, EnsureAdmin(ctx, &config.Config{}, users, hasher))
		admins, err := users.ListAdmins(ctx)
		require.NoError(t, err)
		assert.Empty(t, admins)
	})

	t.Run("creates account", func(t *testing.T) {
		users := repository.NewUserRepository(testutil.NewSQLiteDB(t))
		cfg := &config.Config{AdminEmail: " Root@Example.com ", AdminPassword: "rootpass99", AdminName: "Root"}

		require.NoError(t, EnsureAdmin(ctx, cfg, users, hasher))
		require.NoError(t, EnsureAdmin(ctx, cfg, users, hasher))

		admins, err := users.ListAdmins(ctx)
		require.NoError(t, err)
		require.Len(t, admins, 1)
		assert.Equal(t, "root@example.com", admins[0].Email)
		assert.Equal(t, "Root", admins[0].Name)
		assert.True(t, hasher.Verify("rootpass99", admins[0].PasswordHash))
	})

	t.Run("promotes existing user and keeps password", func(t *testing.T) {
		users := repository.NewUserRepository(testutil.NewSQLiteDB(t))
		hash, err := hasher.Hash("original1")
		require.NoError(t, err)
		u := &models.User{Email: "ops@example.com", Name: "Ops", PasswordHash: hash, Role: models.RoleUser}
		require.NoError(t, users.Create(ctx, u))

		cfg := &config.Config{AdminEmail: "ops@example.com", AdminPassword: "different9"}
		require.NoError(t, EnsureAdmin(ctx, cfg, users, hasher))

		got, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, got.Role)
		assert.True(t, hasher.Verify("original1", got.PasswordHash))
	})

	t.Run("missing password", func(t *testing.T) {
		users := repository.NewUserRepository(testutil.NewSQLiteDB(t))
		err := EnsureAdmin(ctx, &config.Config{AdminEmail: "a@example.com"}, users, hasher)
		assert.Error(t, err)
	})
}
