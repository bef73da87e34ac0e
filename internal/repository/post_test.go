package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scribe/internal/cache"
	"scribe/internal/models"
	"scribe/internal/pagination"
)

func seedPosts(t *testing.T, db *gorm.DB, authorID uint, n int) []models.Post {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := make([]models.Post, 0, n)
	for i := 1; i <= n; i++ {
		p := models.Post{
			Title:     fmt.Sprintf("T%02d", i),
			Content:   fmt.Sprintf("body %d", i),
			Enabled:   true,
			AuthorID:  authorID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&p).Error)
		posts = append(posts, p)
	}
	return posts
}

func mustQuery(t *testing.T, raw pagination.Raw) (pagination.Query, pagination.Filter) {
	t.Helper()
	q, f, err := pagination.Normalize(raw, pagination.MaxPageSizeCap)
	require.NoError(t, err)
	return q, f
}

func TestPostRepository_ListPaged(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	author := seedUser(t, db, "a@b.c", models.RoleUser)
	seedPosts(t, db, author.ID, 25)

	q, f := mustQuery(t, pagination.Raw{PageNo: "1", PageSize: "10", SortBy: "createdAt", SortDir: "asc", Title: "T"})
	posts, total, err := repo.List(context.Background(), q, f, Visibility{})
	require.NoError(t, err)

	assert.Equal(t, int64(25), total)
	require.Len(t, posts, 10)
	assert.Equal(t, "T11", posts[0].Title)
	assert.Equal(t, "T20", posts[9].Title)

	page := pagination.NewPage(posts, q, total)
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.Last)
}

func TestPostRepository_ListSortAndFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := seedUser(t, db, "a@b.c", models.RoleUser)
	require.NoError(t, db.Create(&models.Post{Title: "Go Tips", Content: "Use CONTEXT", Enabled: true, AuthorID: author.ID}).Error)
	require.NoError(t, db.Create(&models.Post{Title: "go modules", Content: "context free", Enabled: true, AuthorID: author.ID}).Error)
	require.NoError(t, db.Create(&models.Post{Title: "Rust", Content: "context", Enabled: true, AuthorID: author.ID}).Error)
	require.NoError(t, db.Create(&models.Post{Title: "100% Go", Content: "x", Enabled: true, AuthorID: author.ID}).Error)

	q, f := mustQuery(t, pagination.Raw{SortBy: "title", SortDir: "ASC", Title: "GO", Content: "Context"})
	posts, total, err := repo.List(ctx, q, f, Visibility{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, posts, 2)

	q, f = mustQuery(t, pagination.Raw{Title: "%"})
	posts, _, err = repo.List(ctx, q, f, Visibility{})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "100% Go", posts[0].Title)

	q, f = mustQuery(t, pagination.Raw{PageNo: "9"})
	posts, total, err = repo.List(ctx, q, f, Visibility{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Empty(t, posts)
}

func TestPostRepository_ListVisibility(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@x.y", models.RoleUser)
	other := seedUser(t, db, "other@x.y", models.RoleUser)
	posts := seedPosts(t, db, owner.ID, 3)
	require.NoError(t, repo.SetEnabled(ctx, posts[0].ID, false))

	q, f := mustQuery(t, pagination.Raw{})
	count := func(vis Visibility) int64 {
		_, total, err := repo.List(ctx, q, f, vis)
		require.NoError(t, err)
		return total
	}

	assert.Equal(t, int64(2), count(Visibility{}))
	assert.Equal(t, int64(2), count(Visibility{ViewerID: other.ID}))
	assert.Equal(t, int64(3), count(Visibility{ViewerID: owner.ID}))
	assert.Equal(t, int64(3), count(Visibility{All: true}))
}

func TestPostRepository_UpdateAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@x.y", models.RoleUser)
	post := seedPosts(t, db, owner.ID, 1)[0]
	require.NoError(t, db.Create(&models.Attachment{PostID: post.ID, UploaderID: owner.ID, OriginalName: "a.txt", StoredName: "abc", Size: 1}).Error)

	post.Title = "Renamed"
	require.NoError(t, repo.Update(ctx, &post))
	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	require.NoError(t, repo.Delete(ctx, post.ID))
	_, err = repo.GetByID(ctx, post.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	var attachments int64
	require.NoError(t, db.Model(&models.Attachment{}).Count(&attachments).Error)
	assert.Zero(t, attachments)

	assert.True(t, models.IsCode(repo.Delete(ctx, post.ID), models.CodeNotFound))
	assert.True(t, models.IsCode(repo.SetEnabled(ctx, post.ID, true), models.CodeNotFound))
	assert.True(t, models.IsCode(repo.Update(ctx, &post), models.CodeNotFound))
}

func TestPostRepository_GetByIDCached(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	db := newTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@x.y", models.RoleUser)
	post := seedPosts(t, db, owner.ID, 1)[0]

	_, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.PostKey(post.ID)))

	// A write outside the repository is invisible until the key is invalidated.
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).Update("title", "sneaky").Error)
	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "T01", got.Title)

	require.NoError(t, repo.SetEnabled(ctx, post.ID, false))
	assert.False(t, mr.Exists(cache.PostKey(post.ID)))
	got, err = repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "sneaky", got.Title)
	assert.False(t, got.Enabled)
}
