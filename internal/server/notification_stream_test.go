package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/auth"
	"scribe/internal/models"
	"scribe/internal/notifications"
)

func TestNotificationStream_RequiresAuthAndUpgrade(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.signup(t, "sam@example.com")

	resp, env := ts.request(t, http.MethodGet, "/api/notifications/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, models.CodeUnauthorized, env.Code)

	resp, _ = ts.request(t, http.MethodGet, "/api/notifications/ws", token, nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestNotificationStream_PushesModerationNotice(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ts := newTestServerWithRedis(t, rdb)
	author, authorID := ts.signup(t, "author@example.com")
	_, adminID := ts.signup(t, "admin@example.com")
	ts.promote(t, adminID)
	post := ts.createPost(t, author, "Questionable")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, ts.hub.Listen(ctx, ts.notifier))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ts.App().Listener(ln) }()
	t.Cleanup(func() { _ = ts.App().Shutdown() })

	header := http.Header{"Authorization": {"Bearer " + author}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/notifications/ws", header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return ts.hub.Connected(authorID) == 1 }, 2*time.Second, 10*time.Millisecond)

	admin := auth.Principal{UserID: adminID, Email: "admin@example.com", Role: models.RoleAdmin}
	_, err = ts.postService.SetEnabled(ctx, admin, post.ID, false)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	kind, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var ev notifications.Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	assert.Equal(t, notifications.EventCreated, ev.Type)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, authorID, ev.Notification.UserID)

	// Shutdown sends a going-away close frame.
	ts.hub.Shutdown()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
