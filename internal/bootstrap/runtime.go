// Package bootstrap wires the process-level runtime shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"scribe/internal/auth"
	"scribe/internal/cache"
	"scribe/internal/config"
	"scribe/internal/database"
	"scribe/internal/middleware"
	"scribe/internal/models"
	"scribe/internal/repository"
	"scribe/internal/seed"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty database with fake users and posts.
	SeedDemo bool
	Hasher   auth.PasswordHasher
}

// InitRuntime connects to the database and redis, ensures the configured
// admin account exists and optionally seeds demo data. The redis client is
// nil when redis is unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	r := cache.InitRedis(cfg.RedisURL)

	hasher := opts.Hasher
	if hasher == nil {
		hasher = auth.NewArgon2Hasher(nil)
	}
	if err := EnsureAdmin(ctx, cfg, repository.NewUserRepository(db), hasher); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap admin account: %w", err)
	}

	if opts.SeedDemo {
		if _, err := seed.NewSeeder(db, seed.Options{}).SeedIfEmpty(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, r, nil
}

// EnsureAdmin creates the ADMIN_EMAIL account, or promotes it when it
// already exists. An existing password is left untouched. No-op when
// ADMIN_EMAIL is unset.
func EnsureAdmin(ctx context.Context, cfg *config.Config, users repository.UserRepository, hasher auth.PasswordHasher) error {
	if cfg == nil || users == nil {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" {
		return nil
	}

	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.IsAdmin() {
			return nil
		}
		if err := users.UpdateRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return err
		}
		middleware.Logger.Info("promoted configured admin", slog.Uint64("user_id", uint64(existing.ID)))
		return nil
	}

	if cfg.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD must be set to create %s", email)
	}
	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	name := strings.TrimSpace(cfg.AdminName)
	if name == "" {
		name = "Administrator"
	}
	admin := &models.User{Email: email, Name: name, PasswordHash: hash, Role: models.RoleAdmin}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}
	middleware.Logger.Info("created configured admin", slog.Uint64("user_id", uint64(admin.ID)))
	return nil
}
