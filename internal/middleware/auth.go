package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"scribe/internal/auth"
	"scribe/internal/models"
)

// CookieName is the cookie that carries the bearer token.
const CookieName = "cookie"

const principalLocal = "principal"

// Authenticate resolves the request principal from the token cookie or the
// Authorization header. It never rejects; unauthenticated requests carry
// auth.Anonymous.
func Authenticate(v auth.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := auth.ResolvePrincipal(v, c.Cookies(CookieName), c.Get(fiber.HeaderAuthorization))
		c.Locals(principalLocal, p)

		ctx := auth.WithPrincipal(c.UserContext(), p)
		if p.IsAuthenticated() {
			c.Locals("userID", p.UserID)
			ctx = context.WithValue(ctx, UserIDKey, p.UserID)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(c *fiber.Ctx) error {
	if !Principal(c).IsAuthenticated() {
		return models.RespondWithError(c, models.NewUnauthorizedError("authentication required"), RequestID(c))
	}
	return c.Next()
}

// Principal returns the principal resolved by Authenticate.
func Principal(c *fiber.Ctx) auth.Principal {
	if p, ok := c.Locals(principalLocal).(auth.Principal); ok {
		return p
	}
	return auth.Anonymous
}
