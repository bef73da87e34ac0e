package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/models"
)

func TestUploadAndDownload(t *testing.T) {
	ts := newTestServer(t)
	owner, _ := ts.signup(t, "owner@example.com")
	post := ts.createPost(t, owner, "With files")
	content := []byte("%PDF-1.4 fake")

	resp, env := ts.do(t, multipartUpload(t, postPath(post.ID, "/uploadFile"), owner, "résumé.pdf", content))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var a models.Attachment
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, "résumé.pdf", a.OriginalName)
	assert.Equal(t, int64(len(content)), a.Size)
	assert.NotContains(t, string(env.Data), "storedName")

	resp, env = ts.request(t, http.MethodGet, postPath(post.ID, "/attachments"), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "résumé.pdf")

	req := httptest.NewRequest(http.MethodGet, postPath(post.ID, fmt.Sprintf("/downloadFile/%d", a.ID)), nil)
	dl, err := ts.App().Test(req, -1)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "application/octet-stream", dl.Header.Get("Content-Type"))
	assert.Equal(t,
		`attachment; filename="r_sum_.pdf"; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`,
		dl.Header.Get("Content-Disposition"))
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)

	other := ts.createPost(t, owner, "Other")
	resp, env = ts.request(t, http.MethodGet, postPath(other.ID, fmt.Sprintf("/downloadFile/%d", a.ID)), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.CodeNotFound, env.Code)
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t)
	owner, _ := ts.signup(t, "owner@example.com")
	stranger, _ := ts.signup(t, "stranger@example.com")
	post := ts.createPost(t, owner, "Guarded")

	resp, env := ts.do(t, multipartUpload(t, postPath(post.ID, "/uploadFile"), stranger, "a.txt", []byte("x")))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeForbidden, env.Code)

	resp, _ = ts.do(t, multipartUpload(t, postPath(post.ID, "/uploadFile"), "", "a.txt", []byte("x")))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for _, name := range []string{`..\evil.sh`, "../../etc/passwd", "a..b"} {
		resp, env = ts.do(t, multipartUpload(t, postPath(post.ID, "/uploadFile"), owner, name, []byte("x")))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
		assert.Equal(t, models.CodeUnsafeFilename, env.Code, name)
	}

	resp, env = ts.do(t, multipartUpload(t, postPath(post.ID, "/uploadFile"), owner, "big.bin", bytes.Repeat([]byte("x"), testMaxUpload+1)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.CodeTooLarge, env.Code)

	// Bodies beyond the server body limit are refused by fiber itself.
	resp, env = ts.do(t, multipartUpload(t, postPath(post.ID, "/uploadFile"), owner, "huge.bin", bytes.Repeat([]byte("x"), testMaxUpload+multipartOverhead+1)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.CodeTooLarge, env.Code)

	req := httptest.NewRequest(http.MethodPost, postPath(post.ID, "/uploadFile"), bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+owner)
	resp, env = ts.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.CodeBadRequest, env.Code)

	entries, err := os.ReadDir(ts.config.StorageRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"report.pdf", `attachment; filename="report.pdf"`},
		{`we"ird\name.txt`, `attachment; filename="we_ird_name.txt"`},
		{"日本.txt", `attachment; filename="__.txt"; filename*=UTF-8''%E6%97%A5%E6%9C%AC.txt`},
		{"a b(1).txt", `attachment; filename="a b(1).txt"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contentDisposition(tt.name))
		})
	}
}
