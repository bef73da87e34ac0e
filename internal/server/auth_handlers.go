package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"scribe/internal/middleware"
	"scribe/internal/models"
	"scribe/internal/service"
)

type joinRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type findPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// Join handles POST /api/auth/join
func (s *Server) Join(c *fiber.Ctx) error {
	var req joinRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusCreated, user.ToResponse())
}

// Login handles POST /api/auth/login. The token is returned in the body and
// also set as an HttpOnly cookie.
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	res, err := s.authService.Login(c.UserContext(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return s.respondError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL() / time.Second),
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return models.RespondWithData(c, fiber.StatusOK, loginResponse{Email: res.Email, Token: res.Token})
}

// Logout handles GET /api/auth/logout. Tokens are stateless, so logging out
// only clears the cookie.
func (s *Server) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return models.RespondWithData(c, fiber.StatusOK, fiber.Map{"success": true})
}

// RequestPasswordReset handles POST /api/auth/find-password. The response is
// identical whether or not the address has an account.
func (s *Server) RequestPasswordReset(c *fiber.Ctx) error {
	var req findPasswordRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	if err := s.authService.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, fiber.Map{
		"message": "If an account exists for that address, a reset link has been sent.",
	})
}

// ApplyPasswordReset handles PUT /api/auth/find-password/:token
func (s *Server) ApplyPasswordReset(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.authService.ApplyPasswordReset(c.UserContext(), c.Params("token"), req.Password)
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, user.ToResponse())
}
