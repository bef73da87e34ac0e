// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"scribe/internal/database"
)

// NewSQLiteDB returns an isolated in-memory database carrying the full
// schema. Connections are capped at one so concurrent tests serialize on it.
func NewSQLiteDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		tb.Fatalf("automigrate: %v", err)
	}
	return db
}

// SentReset is one captured password reset delivery.
type SentReset struct {
	Email string
	Token string
}

// CaptureMailer records reset deliveries instead of sending them.
type CaptureMailer struct {
	mu    sync.Mutex
	Sent  []SentReset
	Err   error
	Delay time.Duration
}

func (m *CaptureMailer) SendPasswordReset(_ context.Context, email, token string) error {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentReset{Email: email, Token: token})
	return m.Err
}

// Count returns how many deliveries were recorded.
func (m *CaptureMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// Last returns the most recent delivery, or the zero value.
func (m *CaptureMailer) Last() SentReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentReset{}
	}
	return m.Sent[len(m.Sent)-1]
}
