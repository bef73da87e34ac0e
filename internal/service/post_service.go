package service

import (
	"context"
	"fmt"
	"log/slog"

	"scribe/internal/auth"
	"scribe/internal/models"
	"scribe/internal/pagination"
	"scribe/internal/repository"
	"scribe/internal/validation"
)

type PostInput struct {
	Title   string
	Content string
}

type PostService struct {
	posts       repository.PostRepository
	notes       *NotificationService
	maxPageSize int
}

func NewPostService(posts repository.PostRepository, notes *NotificationService, maxPageSize int) *PostService {
	return &PostService{posts: posts, notes: notes, maxPageSize: maxPageSize}
}

func (s *PostService) Create(ctx context.Context, p auth.Principal, in PostInput) (*models.Post, error) {
	if !p.IsAuthenticated() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if err := validation.ValidatePost(in.Title, in.Content); err != nil {
		return nil, badRequest(err)
	}
	post := &models.Post{
		Title:    in.Title,
		Content:  in.Content,
		Enabled:  true,
		AuthorID: p.UserID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Get returns a post the principal may see. Disabled posts look missing to
// everyone but their author and ADMINs.
func (s *PostService) Get(ctx context.Context, p auth.Principal, id uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !post.Enabled && !p.CanManage(post.AuthorID) {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}

func (s *PostService) List(ctx context.Context, p auth.Principal, raw pagination.Raw) (models.PageResponse[models.Post], error) {
	q, f, err := pagination.Normalize(raw, s.maxPageSize)
	if err != nil {
		return models.PageResponse[models.Post]{}, err
	}
	vis := repository.Visibility{All: p.IsAdmin(), ViewerID: p.UserID}
	posts, total, err := s.posts.List(ctx, q, f, vis)
	if err != nil {
		return models.PageResponse[models.Post]{}, err
	}
	return pagination.NewPage(posts, q, total), nil
}

func (s *PostService) Update(ctx context.Context, p auth.Principal, id uint, in PostInput) (*models.Post, error) {
	post, err := s.authorize(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePost(in.Title, in.Content); err != nil {
		return nil, badRequest(err)
	}
	post.Title = in.Title
	post.Content = in.Content
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	s.notifyAuthor(ctx, p, post, "updated")
	return post, nil
}

// Delete hard-deletes the post and its attachment rows. Blobs are left for
// the orphan sweep.
func (s *PostService) Delete(ctx context.Context, p auth.Principal, id uint) error {
	post, err := s.authorize(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return err
	}
	s.notifyAuthor(ctx, p, post, "deleted")
	return nil
}

func (s *PostService) SetEnabled(ctx context.Context, p auth.Principal, id uint, enabled bool) (*models.Post, error) {
	post, err := s.authorize(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.posts.SetEnabled(ctx, id, enabled); err != nil {
		return nil, err
	}
	post.Enabled = enabled
	action := "disabled"
	if enabled {
		action = "enabled"
	}
	s.notifyAuthor(ctx, p, post, action)
	return post, nil
}

// authorize loads id for mutation by p. A disabled post the principal cannot
// manage is reported as missing rather than forbidden.
func (s *PostService) authorize(ctx context.Context, p auth.Principal, id uint) (*models.Post, error) {
	if !p.IsAuthenticated() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.CanManage(post.AuthorID) {
		return post, nil
	}
	if !post.Enabled {
		return nil, models.NewNotFoundError("Post", id)
	}
	return nil, models.NewForbiddenError("You do not have permission to modify this post")
}

func (s *PostService) notifyAuthor(ctx context.Context, p auth.Principal, post *models.Post, action string) {
	if s.notes == nil || !p.IsAdmin() || post.IsOwnedBy(p.UserID) {
		return
	}
	title := fmt.Sprintf("Your post was %s by an administrator", action)
	content := fmt.Sprintf("Post %q (#%d) was %s.", post.Title, post.ID, action)
	if _, err := s.notes.Notify(ctx, post.AuthorID, title, content); err != nil {
		slog.WarnContext(ctx, "author notification failed",
			slog.Uint64("post_id", uint64(post.ID)), slog.String("error", err.Error()))
	}
}

// badRequest lifts a validation failure into a BadRequest AppError.
func badRequest(err error) error {
	return models.NewValidationError(err.Error())
}
