package notifications

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"scribe/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxInboundSize = 512

	outboxSize = 64
)

// Subscriber is one open notification socket.
type Subscriber struct {
	UserID uint

	hub    *Hub
	conn   *websocket.Conn
	outbox chan []byte
	once   sync.Once
}

func newSubscriber(h *Hub, conn *websocket.Conn, userID uint) *Subscriber {
	return &Subscriber{
		UserID: userID,
		hub:    h,
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
	}
}

// Outbox exposes queued payloads. The channel is closed on detach.
func (s *Subscriber) Outbox() <-chan []byte {
	return s.outbox
}

// enqueue must be called with the hub's read lock held so it never races
// closeOutbox.
func (s *Subscriber) enqueue(payload []byte) bool {
	select {
	case s.outbox <- payload:
		return true
	default:
		observability.NotificationDrops.WithLabelValues("outbox_full").Inc()
		slog.Warn("notification outbox full, dropping event", slog.Uint64("user_id", uint64(s.UserID)))
		return false
	}
}

func (s *Subscriber) closeOutbox() {
	s.once.Do(func() { close(s.outbox) })
}

// Serve pumps the socket until the peer goes away or the hub shuts down.
func (s *Subscriber) Serve() {
	go s.writeLoop()
	s.readLoop()
}

func (s *Subscriber) readLoop() {
	defer func() {
		s.hub.Detach(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("notification socket closed", slog.Uint64("user_id", uint64(s.UserID)), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Subscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "notification stream closed"))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
