package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestDeadline bounds the request context passed to services.
func RequestDeadline(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
