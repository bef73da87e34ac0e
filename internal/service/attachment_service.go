package service

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"scribe/internal/auth"
	"scribe/internal/models"
	"scribe/internal/observability"
	"scribe/internal/repository"
	"scribe/internal/storage"
)

// orphanGrace protects blobs whose row may still be in flight.
const orphanGrace = 10 * time.Minute

type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Download is an open attachment ready to stream. Callers close Reader.
type Download struct {
	Reader       io.ReadCloser
	Size         int64
	OriginalName string
	ContentType  string
}

type AttachmentService struct {
	posts       *PostService
	attachments repository.AttachmentRepository
	store       *storage.Store
	maxBytes    int64
	clock       auth.Clock
}

func NewAttachmentService(
	posts *PostService,
	attachments repository.AttachmentRepository,
	store *storage.Store,
	maxBytes int64,
	clock auth.Clock,
) *AttachmentService {
	if clock == nil {
		clock = auth.RealClock{}
	}
	return &AttachmentService{
		posts:       posts,
		attachments: attachments,
		store:       store,
		maxBytes:    maxBytes,
		clock:       clock,
	}
}

func (s *AttachmentService) Upload(ctx context.Context, p auth.Principal, postID uint, in UploadInput) (*models.Attachment, error) {
	span, ctx := observability.NewSpan(ctx, "attachments.upload",
		attribute.Int("post.id", int(postID)), attribute.Int64("upload.declared_size", in.Size))
	defer span.End()

	post, err := s.posts.authorize(ctx, p, postID)
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateFilename(in.Filename); err != nil {
		observability.AttachmentRejections.WithLabelValues("filename").Inc()
		return nil, models.NewUnsafeFilenameError(in.Filename)
	}
	if in.Size > s.maxBytes {
		observability.AttachmentRejections.WithLabelValues("declared_size").Inc()
		return nil, models.NewTooLargeError(s.maxBytes)
	}

	stored := storage.StoredName(in.Filename)
	written, err := s.store.Put(ctx, stored, in.Reader, s.maxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			observability.AttachmentRejections.WithLabelValues("stream_size").Inc()
			return nil, models.NewTooLargeError(s.maxBytes)
		}
		span.SetError(err)
		return nil, models.NewInternalError(err)
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	a := &models.Attachment{
		PostID:       post.ID,
		UploaderID:   p.UserID,
		OriginalName: in.Filename,
		StoredName:   stored,
		ContentType:  contentType,
		Size:         written,
	}
	if err := s.attachments.Create(ctx, a); err != nil {
		if rmErr := s.store.Remove(stored); rmErr != nil {
			slog.ErrorContext(ctx, "failed to remove blob after insert failure",
				slog.String("stored_name", stored), slog.String("error", rmErr.Error()))
		}
		span.SetError(err)
		return nil, err
	}
	observability.AttachmentBytes.Add(float64(written))
	return a, nil
}

// Open resolves attachmentID under postID for streaming.
func (s *AttachmentService) Open(ctx context.Context, p auth.Principal, postID, attachmentID uint) (*Download, error) {
	if _, err := s.posts.Get(ctx, p, postID); err != nil {
		return nil, err
	}
	a, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	if a.PostID != postID {
		return nil, models.NewNotFoundError("Attachment", attachmentID)
	}

	f, size, err := s.store.Open(a.StoredName)
	if err != nil {
		if errors.Is(err, storage.ErrUnsafePath) {
			return nil, models.NewUnsafePathError(err)
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.NewNotFoundError("Attachment", attachmentID)
		}
		return nil, models.NewInternalError(err)
	}
	return &Download{Reader: f, Size: size, OriginalName: a.OriginalName, ContentType: a.ContentType}, nil
}

func (s *AttachmentService) List(ctx context.Context, p auth.Principal, postID uint) ([]models.Attachment, error) {
	if _, err := s.posts.Get(ctx, p, postID); err != nil {
		return nil, err
	}
	return s.attachments.ListByPost(ctx, postID)
}

// SweepOrphans deletes blobs no attachment row references. Blobs younger
// than orphanGrace are kept since their row may not be committed yet.
func (s *AttachmentService) SweepOrphans(ctx context.Context) (int, error) {
	referenced, err := s.attachments.StoredNames(ctx)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(referenced))
	for _, name := range referenced {
		keep[name] = struct{}{}
	}

	blobs, err := s.store.List()
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	cutoff := s.clock.Now().Add(-orphanGrace)
	removed := 0
	for _, b := range blobs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if _, ok := keep[b.Name]; ok || b.ModTime.After(cutoff) {
			continue
		}
		if err := s.store.Remove(b.Name); err != nil {
			slog.WarnContext(ctx, "orphan removal failed",
				slog.String("stored_name", b.Name), slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	observability.OrphanBlobsRemoved.Add(float64(removed))
	return removed, nil
}
