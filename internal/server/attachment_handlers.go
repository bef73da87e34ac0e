package server

import (
	"fmt"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"scribe/internal/middleware"
	"scribe/internal/models"
	"scribe/internal/service"
)

// UploadFile handles POST /api/posts/:id/uploadFile (multipart field "file").
func (s *Server) UploadFile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return s.respondError(c, models.NewValidationError("file is required"))
	}
	f, err := fh.Open()
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}
	defer f.Close()

	a, err := s.attachmentService.Upload(c.UserContext(), middleware.Principal(c), id, service.UploadInput{
		Filename:    clientFilename(fh),
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Reader:      f,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, a)
}

// ListAttachments handles GET /api/posts/:id/attachments
func (s *Server) ListAttachments(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	list, err := s.attachmentService.List(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondWithData(c, fiber.StatusOK, list)
}

// DownloadFile handles GET /api/posts/:id/downloadFile/:fileId
func (s *Server) DownloadFile(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	fileID, err := s.parseID(c, "fileId")
	if err != nil {
		return nil
	}
	dl, err := s.attachmentService.Open(c.UserContext(), middleware.Principal(c), postID, fileID)
	if err != nil {
		return s.respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Set(fiber.HeaderContentDisposition, contentDisposition(dl.OriginalName))
	// fasthttp closes the reader once the body has been written.
	return c.SendStream(dl.Reader, int(dl.Size))
}

// clientFilename returns the filename exactly as the client declared it.
// multipart strips directory components, which would hide traversal
// attempts from validation.
func clientFilename(fh *multipart.FileHeader) string {
	if _, params, err := mime.ParseMediaType(fh.Header.Get(fiber.HeaderContentDisposition)); err == nil {
		if name, ok := params["filename"]; ok {
			return name
		}
	}
	return fh.Filename
}

// contentDisposition builds an attachment header with a quoted ASCII
// fallback and, for non-ASCII names, an RFC 5987 filename* parameter.
func contentDisposition(name string) string {
	var fallback strings.Builder
	ascii := true
	for _, r := range name {
		switch {
		case r > 0x7e || r < 0x20:
			ascii = false
			fallback.WriteByte('_')
		case r == '"' || r == '\\':
			fallback.WriteByte('_')
		default:
			fallback.WriteRune(r)
		}
	}
	header := fmt.Sprintf(`attachment; filename="%s"`, fallback.String())
	if !ascii {
		header += "; filename*=UTF-8''" + encodeRFC5987(name)
	}
	return header
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isAttrChar(ch) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isAttrChar(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", ch) >= 0
}
