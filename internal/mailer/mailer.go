// Package mailer hands password reset tokens to an out-of-band delivery
// channel. Actual email delivery happens in a separate consumer.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"scribe/internal/middleware"
)

// KindPasswordReset tags outbox messages that carry a reset token.
const KindPasswordReset = "password_reset"

// ErrNoTransport is returned by RedisOutbox when no redis client is configured.
var ErrNoTransport = errors.New("mailer: no transport configured")

// Mailer delivers password reset tokens to account holders.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// Message is one outbox entry.
type Message struct {
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// RedisOutbox pushes messages onto a redis list for a delivery worker.
type RedisOutbox struct {
	rdb *redis.Client
	key string
}

// NewRedisOutbox returns an outbox writing to key.
func NewRedisOutbox(rdb *redis.Client, key string) *RedisOutbox {
	return &RedisOutbox{rdb: rdb, key: key}
}

func (o *RedisOutbox) SendPasswordReset(ctx context.Context, email, token string) error {
	if o.rdb == nil {
		return ErrNoTransport
	}
	payload, err := json.Marshal(Message{
		Kind:      KindPasswordReset,
		To:        email,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode outbox message: %w", err)
	}
	if err := o.rdb.LPush(ctx, o.key, payload).Err(); err != nil {
		middleware.RedisErrors("lpush")
		return fmt.Errorf("push outbox message: %w", err)
	}
	return nil
}

// LogMailer writes reset requests to the application log. The token itself
// is only included when RevealToken is set (local development).
type LogMailer struct {
	RevealToken bool
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	attrs := []any{slog.String("to", email)}
	if m.RevealToken {
		attrs = append(attrs, slog.String("token", token))
	}
	middleware.Logger.InfoContext(ctx, "password reset requested", attrs...)
	return nil
}

// New picks the redis outbox when a client is available and falls back to
// logging otherwise.
func New(rdb *redis.Client, key string, development bool) Mailer {
	if rdb != nil {
		return NewRedisOutbox(rdb, key)
	}
	return LogMailer{RevealToken: development}
}
