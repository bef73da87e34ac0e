// Package notifications pushes in-app notification events through per-user
// redis channels and relays them to the websockets users hold open.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/redis/go-redis/v9"

	"scribe/internal/middleware"
	"scribe/internal/models"
)

// Event is the payload published for a new notification.
type Event struct {
	Type         string               `json:"type"`
	Notification *models.Notification `json:"notification"`
}

const EventCreated = "notification.created"

// Notifier publishes notification events into redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier. A nil client makes every publish a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

const (
	userChannelFormat  = "notifications:user:%d"
	userChannelPattern = "notifications:user:*"
)

// UserChannel is the channel carrying events for userID.
func UserChannel(userID uint) string {
	return fmt.Sprintf(userChannelFormat, userID)
}

// ParseUserChannel is the inverse of UserChannel.
func ParseUserChannel(channel string) (uint, bool) {
	var userID uint
	if _, err := fmt.Sscanf(channel, userChannelFormat, &userID); err != nil {
		return 0, false
	}
	return userID, UserChannel(userID) == channel
}

// PublishCreated announces n on its recipient's channel.
func (n *Notifier) PublishCreated(ctx context.Context, note *models.Notification) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(Event{Type: EventCreated, Notification: note})
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, UserChannel(note.UserID), payload).Err(); err != nil {
		middleware.RedisErrors("publish")
		return err
	}
	return nil
}

// SubscribeUsers listens on every user channel and calls onEvent for each
// message until ctx is done. It returns once the subscription is confirmed.
// A nil client makes it a no-op.
func (n *Notifier) SubscribeUsers(ctx context.Context, onEvent func(userID uint, payload string)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		middleware.RedisErrors("psubscribe")
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				userID, ok := ParseUserChannel(msg.Channel)
				if !ok {
					slog.WarnContext(ctx, "ignoring event on unexpected channel", slog.String("channel", msg.Channel))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							slog.ErrorContext(ctx, "notification relay panicked",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onEvent(userID, msg.Payload)
				}()
			}
		}
	}()
	return nil
}
