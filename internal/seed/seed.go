package seed

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"scribe/internal/auth"
	"scribe/internal/middleware"
	"scribe/internal/models"
)

// DemoPassword is shared by every seeded account.
const DemoPassword = "password123"

const batchSize = 100

// Options configure a Seeder.
type Options struct {
	NumUsers int
	NumPosts int
	MaxDays  int
	// RandSeed makes the generated content reproducible when non-zero.
	RandSeed int64
	Hasher   auth.PasswordHasher
}

// Seeder populates the database with fake users and posts.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// Summary reports what a run created.
type Summary struct {
	Users int
	Posts int
}

// NewSeeder returns a Seeder with defaults filled in.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.NumUsers <= 0 {
		opts.NumUsers = 20
	}
	if opts.NumPosts < 0 {
		opts.NumPosts = 0
	} else if opts.NumPosts == 0 {
		opts.NumPosts = 100
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.NewArgon2Hasher(nil)
	}
	return &Seeder{db: db, opts: opts, factory: NewFactory(opts.RandSeed, opts.MaxDays)}
}

// ClearAll removes every row the application owns, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tx := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, m := range []any{&models.Attachment{}, &models.Notification{}, &models.ResetToken{}, &models.Post{}, &models.User{}} {
		if err := tx.Delete(m).Error; err != nil {
			return fmt.Errorf("clear %T: %w", m, err)
		}
	}
	middleware.Logger.Info("database cleared")
	return nil
}

// Run creates the configured number of users and spreads posts across them.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	users, err := s.SeedUsers(ctx, s.opts.NumUsers)
	if err != nil {
		return Summary{}, err
	}
	posts, err := s.SeedPosts(ctx, users, s.opts.NumPosts)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Users: len(users), Posts: len(posts)}
	middleware.Logger.Info("seed complete", slog.Int("users", summary.Users), slog.Int("posts", summary.Posts))
	return summary, nil
}

// SeedIfEmpty runs the seeder only when no post exists yet.
func (s *Seeder) SeedIfEmpty(ctx context.Context) (Summary, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Count(&count).Error; err != nil {
		return Summary{}, fmt.Errorf("count posts: %w", err)
	}
	if count > 0 {
		return Summary{}, nil
	}
	return s.Run(ctx)
}

// SeedUsers inserts n USER accounts sharing DemoPassword.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]*models.User, error) {
	if n <= 0 {
		return nil, nil
	}
	hash, err := s.opts.Hasher.Hash(DemoPassword)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	users := make([]*models.User, 0, n)
	for i := range n {
		users = append(users, s.factory.BuildUser(i+1, hash))
	}
	if err := s.db.WithContext(ctx).CreateInBatches(users, batchSize).Error; err != nil {
		return nil, fmt.Errorf("insert users: %w", err)
	}
	return users, nil
}

// SeedPosts inserts n posts authored round-robin by users.
func (s *Seeder) SeedPosts(ctx context.Context, users []*models.User, n int) ([]*models.Post, error) {
	if n <= 0 || len(users) == 0 {
		return nil, nil
	}
	posts := make([]*models.Post, 0, n)
	for i := range n {
		posts = append(posts, s.factory.BuildPost(users[i%len(users)]))
	}
	if err := s.db.WithContext(ctx).CreateInBatches(posts, batchSize).Error; err != nil {
		return nil, fmt.Errorf("insert posts: %w", err)
	}

	// enabled has a column default, so false is dropped on insert.
	var disabled []uint
	for _, p := range posts {
		if !p.Enabled {
			disabled = append(disabled, p.ID)
		}
	}
	if len(disabled) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id IN ?", disabled).Update("enabled", false).Error; err != nil {
			return nil, fmt.Errorf("disable posts: %w", err)
		}
	}
	return posts, nil
}
