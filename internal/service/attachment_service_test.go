package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/auth"
	"scribe/internal/models"
)

func upload(name, body string) UploadInput {
	return UploadInput{Filename: name, ContentType: "text/plain", Size: int64(len(body)), Reader: strings.NewReader(body)}
}

func blobCount(t *testing.T, h *harness) int {
	t.Helper()
	entries, err := os.ReadDir(h.store.Root())
	require.NoError(t, err)
	return len(entries)
}

func TestAttachmentService_UploadAndDownload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.register(t, "owner@example.com")
	post, err := h.posts.Create(ctx, owner, PostInput{Title: "t", Content: "c"})
	require.NoError(t, err)

	a, err := h.attachments.Upload(ctx, owner, post.ID, upload("notes.txt", "hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.Size)
	assert.Regexp(t, `^[0-9a-f]{32}-[0-9a-f]{16}$`, a.StoredName)

	dl, err := h.attachments.Open(ctx, auth.Anonymous, post.ID, a.ID)
	require.NoError(t, err)
	defer dl.Reader.Close()
	body, err := io.ReadAll(dl.Reader)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "notes.txt", dl.OriginalName)

	list, err := h.attachments.List(ctx, auth.Anonymous, post.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other, err := h.posts.Create(ctx, owner, PostInput{Title: "t2", Content: "c"})
	require.NoError(t, err)
	_, err = h.attachments.Open(ctx, auth.Anonymous, other.ID, a.ID)
	requireCode(t, err, models.CodeNotFound)
}

func TestAttachmentService_UploadRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.register(t, "owner@example.com")
	stranger := h.register(t, "stranger@example.com")
	post, err := h.posts.Create(ctx, owner, PostInput{Title: "t", Content: "c"})
	require.NoError(t, err)

	_, err = h.attachments.Upload(ctx, stranger, post.ID, upload("a.txt", "x"))
	requireCode(t, err, models.CodeForbidden)
	_, err = h.attachments.Upload(ctx, auth.Anonymous, post.ID, upload("a.txt", "x"))
	requireCode(t, err, models.CodeUnauthorized)
	_, err = h.attachments.Upload(ctx, owner, 9999, upload("a.txt", "x"))
	requireCode(t, err, models.CodeNotFound)

	for _, name := range []string{"", "../../etc/passwd", `dir\file`, "a/b"} {
		_, err = h.attachments.Upload(ctx, owner, post.ID, upload(name, "x"))
		requireCode(t, err, models.CodeUnsafeFilename)
	}

	big := strings.Repeat("x", testMaxBytes+1)
	_, err = h.attachments.Upload(ctx, owner, post.ID, upload("big.bin", big))
	requireCode(t, err, models.CodeTooLarge)

	// A lying declared size is caught while streaming.
	_, err = h.attachments.Upload(ctx, owner, post.ID, UploadInput{Filename: "big.bin", Size: 1, Reader: bytes.NewReader([]byte(big))})
	requireCode(t, err, models.CodeTooLarge)

	assert.Zero(t, blobCount(t, h))
	var rows int64
	require.NoError(t, h.db.Model(&models.Attachment{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestAttachmentService_RecordsUploader(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.register(t, "owner@example.com")
	admin := h.admin(t, "admin@example.com")
	post, err := h.posts.Create(ctx, owner, PostInput{Title: "t", Content: "c"})
	require.NoError(t, err)

	mine, err := h.attachments.Upload(ctx, owner, post.ID, upload("mine.txt", "x"))
	require.NoError(t, err)
	assert.Equal(t, owner.UserID, mine.UploaderID)

	theirs, err := h.attachments.Upload(ctx, admin, post.ID, upload("theirs.txt", "y"))
	require.NoError(t, err)
	assert.Equal(t, admin.UserID, theirs.UploaderID)

	var stored models.Attachment
	require.NoError(t, h.db.First(&stored, theirs.ID).Error)
	assert.Equal(t, admin.UserID, stored.UploaderID)
	assert.Equal(t, post.ID, stored.PostID)
	assert.True(t, h.db.Migrator().HasColumn(&models.Attachment{}, "uploader_id"))
}

func TestAttachmentService_HiddenPost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.register(t, "owner@example.com")
	stranger := h.register(t, "stranger@example.com")
	post, err := h.posts.Create(ctx, owner, PostInput{Title: "t", Content: "c"})
	require.NoError(t, err)
	a, err := h.attachments.Upload(ctx, owner, post.ID, upload("a.txt", "x"))
	require.NoError(t, err)
	_, err = h.posts.SetEnabled(ctx, owner, post.ID, false)
	require.NoError(t, err)

	_, err = h.attachments.Open(ctx, stranger, post.ID, a.ID)
	requireCode(t, err, models.CodeNotFound)

	dl, err := h.attachments.Open(ctx, owner, post.ID, a.ID)
	require.NoError(t, err)
	require.NoError(t, dl.Reader.Close())
}

func TestAttachmentService_SweepOrphans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.register(t, "owner@example.com")
	keep, err := h.posts.Create(ctx, owner, PostInput{Title: "keep", Content: "c"})
	require.NoError(t, err)
	drop, err := h.posts.Create(ctx, owner, PostInput{Title: "drop", Content: "c"})
	require.NoError(t, err)

	_, err = h.attachments.Upload(ctx, owner, keep.ID, upload("a.txt", "a"))
	require.NoError(t, err)
	_, err = h.attachments.Upload(ctx, owner, drop.ID, upload("b.txt", "b"))
	require.NoError(t, err)
	require.NoError(t, h.posts.Delete(ctx, owner, drop.ID))
	assert.Equal(t, 2, blobCount(t, h))

	// Fresh blobs are inside the grace window.
	h.clock.T = time.Now().UTC()
	n, err := h.attachments.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.T = time.Now().UTC().Add(orphanGrace + time.Minute)
	n, err = h.attachments.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, blobCount(t, h))
}

func TestMaintenance_RunOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "owner@example.com")
	h.requestReset(t, "owner@example.com")

	h.clock.Advance(time.Hour)
	NewMaintenance(h.attachments, h.resets, time.Minute).RunOnce(ctx)

	var rows int64
	require.NoError(t, h.db.Model(&models.ResetToken{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestMaintenance_DisabledClosesDone(t *testing.T) {
	m := NewMaintenance(nil, nil, 0)
	m.Start(context.Background())
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("disabled maintenance did not report done")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m = NewMaintenance(nil, nil, time.Hour)
	m.Start(ctx)
	cancel()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("maintenance loop did not stop")
	}
}
