package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/websocket/v2"

	"scribe/internal/observability"
)

const (
	maxSocketsPerUser = 8
	maxSockets        = 5000
)

var (
	ErrUserSocketLimit = errors.New("notification socket limit reached for user")
	ErrSocketLimit     = errors.New("notification socket limit reached")
	ErrHubClosed       = errors.New("notification hub is shut down")
)

// Hub fans notification events out to every socket a user has open.
type Hub struct {
	mu      sync.RWMutex
	sockets map[uint]map[*Subscriber]struct{}
	total   int
	closed  bool
}

func NewHub() *Hub {
	return &Hub{sockets: make(map[uint]map[*Subscriber]struct{})}
}

// Attach registers conn for userID. conn may be nil in tests that only read
// the subscriber's outbox.
func (h *Hub) Attach(userID uint, conn *websocket.Conn) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.total >= maxSockets {
		return nil, ErrSocketLimit
	}
	set, ok := h.sockets[userID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.sockets[userID] = set
	}
	if len(set) >= maxSocketsPerUser {
		return nil, ErrUserSocketLimit
	}

	sub := newSubscriber(h, conn, userID)
	set[sub] = struct{}{}
	h.total++
	observability.NotificationSockets.Inc()
	return sub, nil
}

// Detach forgets sub and closes its outbox. Safe to call more than once.
func (h *Hub) Detach(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.sockets[sub.UserID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.sockets, sub.UserID)
	}
	h.total--
	observability.NotificationSockets.Dec()
	sub.closeOutbox()
}

// Deliver queues payload on every socket of userID and returns how many
// accepted it.
func (h *Hub) Deliver(userID uint, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	queued := 0
	for sub := range h.sockets[userID] {
		if sub.enqueue(payload) {
			queued++
		}
	}
	return queued
}

// Connected reports how many sockets userID has open.
func (h *Hub) Connected(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sockets[userID])
}

// Listen subscribes the hub to n's user channels until ctx is done.
func (h *Hub) Listen(ctx context.Context, n *Notifier) error {
	return n.SubscribeUsers(ctx, func(userID uint, payload string) {
		if h.Deliver(userID, []byte(payload)) == 0 {
			slog.DebugContext(ctx, "notification event had no open socket", slog.Uint64("user_id", uint64(userID)))
		}
	})
}

// Shutdown closes every outbox. Each write loop then sends a going-away
// close frame and closes its connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.sockets {
		for sub := range set {
			sub.closeOutbox()
			observability.NotificationSockets.Dec()
		}
	}
	h.sockets = make(map[uint]map[*Subscriber]struct{})
	h.total = 0
}
