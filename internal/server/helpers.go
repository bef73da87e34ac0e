package server

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"scribe/internal/middleware"
	"scribe/internal/models"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 64)
	if err != nil || id == 0 {
		_ = s.respondError(c, models.NewValidationError("Invalid "+param))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parseBody decodes the JSON body into dst, writing a 400 on failure.
func (s *Server) parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		_ = s.respondError(c, models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// respondError writes the error envelope. Internal errors are logged once
// here, tagged with the request id that is echoed as correlationId.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	rid := middleware.RequestID(c)
	appErr := models.AsAppError(err)
	if appErr.Code == models.CodeInternal {
		cause := err
		if appErr.Err != nil {
			cause = appErr.Err
		}
		middleware.Logger.ErrorContext(c.UserContext(), "internal error",
			slog.String("correlation_id", rid),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("error", cause.Error()),
		)
	}
	return models.RespondWithError(c, appErr, rid)
}
