package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"scribe/internal/middleware"
	"scribe/internal/models"
	"scribe/internal/notifications"
)

// GetNotifications handles GET /api/notifications
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	page, err := s.notificationService.List(c.UserContext(), middleware.Principal(c), pageQuery(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, page)
}

// DismissNotification handles POST /api/notifications/:id/dismiss
func (s *Server) DismissNotification(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	n, err := s.notificationService.Dismiss(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, n)
}

// requireUpgrade rejects plain HTTP requests to websocket routes.
func requireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// NotificationStream handles GET /api/notifications/ws. Each notification
// created for the caller is pushed as a JSON text frame.
func (s *Server) NotificationStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok || userID == 0 {
			_ = conn.Close()
			return
		}

		sub, err := s.hub.Attach(userID, conn)
		if err != nil {
			reason := "socket limit reached"
			if errors.Is(err, notifications.ErrHubClosed) {
				reason = "server shutting down"
			}
			slog.Warn("notification socket refused", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason))
			_ = conn.Close()
			return
		}
		sub.Serve()
	})
}
