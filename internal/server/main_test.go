package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scribe/internal/auth"
	"scribe/internal/config"
	"scribe/internal/models"
	"scribe/internal/testutil"
)

const testMaxUpload = 4096

type testServer struct {
	*Server
	db   *gorm.DB
	mail *testutil.CaptureMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithRedis(t, nil)
}

// newTestServerWithRedis builds a server whose notifier publishes through rdb.
func newTestServerWithRedis(t *testing.T, rdb *redis.Client) *testServer {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:             "0123456789abcdef0123456789abcdef",
		JWTTTLSeconds:         300,
		JWTIssuer:             "scribe-test",
		ResetTTLSeconds:       1800,
		MailOutboxKey:         "mail:outbox",
		StorageRoot:           t.TempDir(),
		MaxUploadBytes:        testMaxUpload,
		MaxPageSize:           50,
		AllowedOrigins:        "http://localhost:3000",
		RequestTimeoutSeconds: 30,
		Env:                   "test",
	}
	db := testutil.NewSQLiteDB(t)
	mail := &testutil.CaptureMailer{}
	s, err := NewServerWithDeps(cfg, db, rdb,
		WithHasher(auth.NewArgon2Hasher(auth.LowCostParams)),
		WithMailer(mail),
	)
	require.NoError(t, err)
	return &testServer{Server: s, db: db, mail: mail}
}

// envelope decodes both success and error bodies.
type envelope struct {
	Status        string          `json:"status"`
	Code          string          `json:"code"`
	Message       string          `json:"message"`
	CorrelationID string          `json:"correlationId"`
	Data          json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := ts.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var env envelope
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	}
	return resp, env
}

func (ts *testServer) request(t *testing.T, method, path, token string, payload interface{}) (*http.Response, envelope) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.do(t, req)
}

// signup registers and logs in, returning the bearer token and user id.
func (ts *testServer) signup(t *testing.T, email string) (string, uint) {
	t.Helper()
	resp, env := ts.request(t, http.MethodPost, "/api/auth/join", "", map[string]string{
		"email": email, "name": "Tester", "password": "passw0rd!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var user models.UserResponse
	require.NoError(t, json.Unmarshal(env.Data, &user))
	return ts.login(t, email, "passw0rd!"), user.ID
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, env := ts.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var out loginResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.Token
}

func (ts *testServer) promote(t *testing.T, userID uint) {
	t.Helper()
	require.NoError(t, ts.db.Model(&models.User{}).Where("id = ?", userID).Update("role", models.RoleAdmin).Error)
}

func (ts *testServer) createPost(t *testing.T, token, title string) models.Post {
	t.Helper()
	resp, env := ts.request(t, http.MethodPost, "/api/posts", token, map[string]string{"title": title, "content": "body of " + title})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var post models.Post
	require.NoError(t, json.Unmarshal(env.Data, &post))
	return post
}

func multipartUpload(t *testing.T, path, token, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func postPath(id uint, suffix string) string {
	return fmt.Sprintf("/api/posts/%d%s", id, suffix)
}
