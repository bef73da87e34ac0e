package server

import (
	"github.com/gofiber/fiber/v2"

	"scribe/internal/middleware"
	"scribe/internal/models"
	"scribe/internal/pagination"
	"scribe/internal/service"
)

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// pageQuery collects the paging, sorting and filter parameters as sent.
func pageQuery(c *fiber.Ctx) pagination.Raw {
	return pagination.Raw{
		PageNo:   c.Query("pageNo"),
		PageSize: c.Query("pageSize"),
		SortBy:   c.Query("sortBy"),
		SortDir:  c.Query("sortDir"),
		Title:    c.Query("title"),
		Content:  c.Query("content"),
	}
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page, err := s.postService.List(c.UserContext(), middleware.Principal(c), pageQuery(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, page)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.Get(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, post)
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req postRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	post, err := s.postService.Create(c.UserContext(), middleware.Principal(c), service.PostInput{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusCreated, post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req postRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	post, err := s.postService.Update(c.UserContext(), middleware.Principal(c), id, service.PostInput{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.postService.Delete(c.UserContext(), middleware.Principal(c), id); err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, fiber.Map{"success": true})
}

// EnablePost handles POST /api/posts/:id/enable
func (s *Server) EnablePost(c *fiber.Ctx) error {
	return s.setEnabled(c, true)
}

// DisablePost handles POST /api/posts/:id/unable
func (s *Server) DisablePost(c *fiber.Ctx) error {
	return s.setEnabled(c, false)
}

func (s *Server) setEnabled(c *fiber.Ctx, enabled bool) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.SetEnabled(c.UserContext(), middleware.Principal(c), id, enabled)
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, post)
}
