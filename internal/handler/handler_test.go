package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contentgate/internal/db"
	"github.com/contentgate/internal/gateway"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	subscribed   bool
	exchangeErr  error
	resolved     map[string]string
	checkedToken string
}

func (f *fakeGateway) AuthorizationURL() string {
	return "https://accounts.example.com/o/oauth2/auth?client_id=test"
}

func (f *fakeGateway) ExchangeCode(ctx context.Context, code string) (gateway.Token, error) {
	if f.exchangeErr != nil || code == "" {
		return gateway.Token{}, gateway.ErrAuthExchange
	}
	return gateway.Token{AccessToken: "tok-" + code}, nil
}

func (f *fakeGateway) FetchProfile(ctx context.Context, accessToken string) (gateway.Profile, error) {
	return gateway.Profile{ID: "g-1", Email: "google@x.com"}, nil
}

func (f *fakeGateway) ResolveChannelID(ctx context.Context, input string) (string, error) {
	if id, ok := f.resolved[input]; ok {
		return id, nil
	}
	return "", gateway.ErrChannelNotFound
}

func (f *fakeGateway) IsSubscribed(ctx context.Context, accessToken, channelID string) (bool, error) {
	f.checkedToken = accessToken
	return f.subscribed, nil
}

func (f *fakeGateway) Subscribe(ctx context.Context, accessToken, channelID string) error {
	return nil
}

type testServer struct {
	engine  *gin.Engine
	store   *db.Store
	gw      *fakeGateway
	cookies []*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	store, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gw := &fakeGateway{resolved: map[string]string{}}
	api := NewAPI(store, gw, Options{
		SiteBaseURL:    "https://gate.example.com",
		MaxUploadBytes: 1 << 10,
		Logger:         logger,
	})

	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	r.GET("/content/:id", api.ShowContent)
	r.POST("/content/:id/email", api.SubmitEmail)
	r.POST("/content/:id/cancel", api.CancelAttempt)
	r.GET("/content/:id/attachments/:attachmentId", api.DownloadAttachment)
	r.GET("/auth/google", api.StartGoogleAuth)
	r.GET("/auth/callback", api.OAuthCallback)
	r.POST("/admin/login", api.Login)
	r.POST("/admin/logout", api.Logout)
	auth := r.Group("/admin/api", AuthRequired())
	auth.GET("/dashboard", api.ShowDashboard)
	auth.GET("/contents", api.ListContents)
	auth.POST("/contents", api.CreateContent)
	auth.GET("/contents/:id", api.GetContent)
	auth.PUT("/contents/:id", api.UpdateContent)
	auth.DELETE("/contents/:id", api.DeleteContent)
	auth.POST("/contents/:id/attachments", api.UploadAttachment)
	auth.GET("/subscriptions", api.ListSubscriptions)
	auth.GET("/channel-policy", api.GetChannelPolicy)
	auth.PUT("/channel-policy", api.UpdateChannelPolicy)
	auth.POST("/channel-policy/resolve", api.ResolveChannel)
	auth.PUT("/credential", api.UpdateCredential)

	return &testServer{engine: r, store: store, gw: gw}
}

// do sends a request carrying the cookies collected so far.
func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	s.engine.ServeHTTP(rr, req)
	for _, set := range rr.Result().Cookies() {
		kept := s.cookies[:0]
		for _, existing := range s.cookies {
			if existing.Name != set.Name {
				kept = append(kept, existing)
			}
		}
		s.cookies = append(kept, set)
	}
	return rr
}

func (s *testServer) doJSON(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return s.do(t, method, path, body, "application/json")
}

func (s *testServer) login(t *testing.T) {
	t.Helper()
	rr := s.doJSON(t, http.MethodPost, "/admin/login", gin.H{"email": "admin@example.com", "password": "admin123"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

func (s *testServer) putContent(t *testing.T, content db.Content) {
	t.Helper()
	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now()
	}
	require.NoError(t, s.store.PutContent(context.Background(), &content))
}

func TestAdminAPIRequiresLogin(t *testing.T) {
	s := newTestServer(t)

	rr := s.doJSON(t, http.MethodGet, "/admin/api/contents", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.doJSON(t, http.MethodPost, "/admin/login", gin.H{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	s.login(t)
	rr = s.doJSON(t, http.MethodGet, "/admin/api/contents", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.doJSON(t, http.MethodPost, "/admin/logout", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = s.doJSON(t, http.MethodGet, "/admin/api/contents", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminContentLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	rr := s.doJSON(t, http.MethodPost, "/admin/api/contents", gin.H{"title": "", "description": "d", "body": "b"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.doJSON(t, http.MethodPost, "/admin/api/contents", gin.H{"title": "Guide", "description": "d", "body": "# Guide"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody(t, rr)
	content := created["content"].(map[string]interface{})
	id := content["id"].(string)
	assert.Equal(t, "https://gate.example.com/content/"+id, created["share_link"])

	rr = s.doJSON(t, http.MethodPut, "/admin/api/contents/"+id, gin.H{"title": "Guide v2", "description": "d", "body": "# Guide"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decodeBody(t, rr)["content"].(map[string]interface{})
	assert.Equal(t, "Guide v2", updated["title"])
	assert.Equal(t, content["created_at"], updated["created_at"])

	rr = s.doJSON(t, http.MethodPut, "/admin/api/contents/missing", gin.H{"title": "t", "description": "d", "body": "b"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("hello attachment"))
	require.NoError(t, writer.Close())
	rr = s.do(t, http.MethodPost, "/admin/api/contents/"+id+"/attachments", &buf, writer.FormDataContentType())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	attachment := decodeBody(t, rr)["attachment"].(map[string]interface{})
	assert.Equal(t, "notes.txt", attachment["name"])
	assert.Equal(t, "text/plain", attachment["mime_type"])

	rr = s.doJSON(t, http.MethodGet, "/admin/api/contents", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody(t, rr)["contents"].([]interface{})
	require.Len(t, list, 1)
	assert.Len(t, list[0].(map[string]interface{})["attachments"], 1)

	rr = s.doJSON(t, http.MethodDelete, "/admin/api/contents/"+id, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = s.doJSON(t, http.MethodGet, "/admin/api/contents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadRejectsOversizedFiles(t *testing.T) {
	s := newTestServer(t)
	s.login(t)
	s.putContent(t, db.Content{ID: "c1", Title: "t", Description: "d", Body: "b"})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "big.bin")
	require.NoError(t, err)
	_, _ = part.Write(bytes.Repeat([]byte("x"), 2<<10))
	require.NoError(t, writer.Close())

	rr := s.do(t, http.MethodPost, "/admin/api/contents/c1/attachments", &buf, writer.FormDataContentType())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestChannelPolicyEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.login(t)
	s.gw.resolved["https://www.youtube.com/@creator"] = "UCcreator"

	rr := s.doJSON(t, http.MethodGet, "/admin/api/channel-policy", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	policy := decodeBody(t, rr)["policy"].(map[string]interface{})
	assert.Equal(t, false, policy["enabled"])

	rr = s.doJSON(t, http.MethodPut, "/admin/api/channel-policy", gin.H{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.doJSON(t, http.MethodPut, "/admin/api/channel-policy", gin.H{
		"channel_url":  "https://www.youtube.com/@creator",
		"channel_name": "Creator",
		"enabled":      true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	policy = decodeBody(t, rr)["policy"].(map[string]interface{})
	assert.Equal(t, "UCcreator", policy["channel_id"])

	rr = s.doJSON(t, http.MethodPost, "/admin/api/channel-policy/resolve", gin.H{"channel_url": "https://www.youtube.com/@creator"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "UCcreator", decodeBody(t, rr)["channel_id"])

	rr = s.doJSON(t, http.MethodPost, "/admin/api/channel-policy/resolve", gin.H{"channel_url": "https://www.youtube.com/@nobody"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.doJSON(t, http.MethodGet, "/admin/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin@example.com", decodeBody(t, rr)["email"])
}

func TestUpdateCredential(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	rr := s.doJSON(t, http.MethodPut, "/admin/api/credential", gin.H{"email": "owner@site.io", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.doJSON(t, http.MethodPut, "/admin/api/credential", gin.H{"email": "owner@site.io", "password": "long-enough"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	s.cookies = nil
	rr = s.doJSON(t, http.MethodPost, "/admin/login", gin.H{"email": "owner@site.io", "password": "long-enough"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestVisitorPublicContent(t *testing.T) {
	s := newTestServer(t)
	s.putContent(t, db.Content{ID: "c1", Title: "Open", Description: "d", Body: "**bold**", IsPublic: true})

	rr := s.doJSON(t, http.MethodGet, "/content/c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["granted"])
	assert.Contains(t, body["html"], "<strong>bold</strong>")

	rr = s.doJSON(t, http.MethodGet, "/content/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestVisitorEmailGate(t *testing.T) {
	s := newTestServer(t)
	s.putContent(t, db.Content{
		ID: "c1", Title: "Gated", Description: "d", Body: "secret body",
		Attachments: []db.FileAttachment{{ID: "a1", Name: "n.txt", MimeType: "text/plain", Size: 5, Locator: "data:text/plain;base64,aGVsbG8="}},
	})

	rr := s.doJSON(t, http.MethodGet, "/content/c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, false, body["granted"])
	assert.NotContains(t, body, "html")
	assert.Equal(t, "awaiting_email", body["attempt"].(map[string]interface{})["state"])

	rr = s.do(t, http.MethodGet, "/content/c1/attachments/a1", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.doJSON(t, http.MethodPost, "/content/c1/email", gin.H{"email": "bad"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body = decodeBody(t, rr)
	assert.Equal(t, "awaiting_email", body["attempt"].(map[string]interface{})["state"])

	rr = s.doJSON(t, http.MethodPost, "/content/c1/email", gin.H{"email": "a@b.co"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body = decodeBody(t, rr)
	assert.Equal(t, true, body["granted"])
	assert.Contains(t, body["html"], "secret body")

	rr = s.do(t, http.MethodGet, "/content/c1/attachments/a1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "n.txt")

	// reloading keeps the granted attempt
	rr = s.doJSON(t, http.MethodGet, "/content/c1", nil)
	assert.Equal(t, true, decodeBody(t, rr)["granted"])

	rr = s.doJSON(t, http.MethodPost, "/content/c1/cancel", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = s.doJSON(t, http.MethodGet, "/content/c1", nil)
	assert.Equal(t, false, decodeBody(t, rr)["granted"])
}

func TestVisitorYouTubeGate(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.putContent(t, db.Content{ID: "c1", Title: "Gated", Description: "d", Body: "members only"})
	require.NoError(t, s.store.PutChannelPolicy(ctx, db.ChannelPolicy{ChannelID: "UCx", ChannelName: "Creator", Enabled: true}))

	rr := s.doJSON(t, http.MethodGet, "/auth/google", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.doJSON(t, http.MethodPost, "/content/c1/email", gin.H{"email": "a@b.co"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	attempt := decodeBody(t, rr)["attempt"].(map[string]interface{})
	assert.Equal(t, "awaiting_external_auth", attempt["state"])

	rr = s.doJSON(t, http.MethodGet, "/auth/google", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, s.gw.AuthorizationURL(), rr.Header().Get("Location"))

	// not subscribed
	rr = s.doJSON(t, http.MethodGet, "/auth/callback?code=abc", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/content/c1", rr.Header().Get("Location"))
	assert.Equal(t, "tok-abc", s.gw.checkedToken)

	rr = s.doJSON(t, http.MethodGet, "/content/c1", nil)
	body := decodeBody(t, rr)
	assert.Equal(t, false, body["granted"])
	attempt = body["attempt"].(map[string]interface{})
	assert.Equal(t, "denied", attempt["outcome"])
	assert.Contains(t, attempt["reason"], "Creator")

	// subscribed on the second try
	s.gw.subscribed = true
	rr = s.doJSON(t, http.MethodPost, "/content/c1/email", gin.H{"email": "a@b.co"})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.doJSON(t, http.MethodGet, "/auth/callback?code=def", nil)
	require.Equal(t, http.StatusFound, rr.Code)

	rr = s.doJSON(t, http.MethodGet, "/content/c1", nil)
	body = decodeBody(t, rr)
	assert.Equal(t, true, body["granted"])
	assert.Contains(t, body["html"], "members only")

	s.login(t)
	rr = s.doJSON(t, http.MethodGet, "/admin/api/subscriptions?content_id=c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	subs := decodeBody(t, rr)["subscriptions"].([]interface{})
	require.Len(t, subs, 1)
	sub := subs[0].(map[string]interface{})
	assert.Equal(t, "google@x.com", sub["email"])
	assert.Equal(t, true, sub["youtube_subscribed"])
	assert.NotContains(t, sub, "access_token")
}

func TestOAuthCallbackWithoutCodeReprompts(t *testing.T) {
	s := newTestServer(t)
	s.putContent(t, db.Content{ID: "c1", Title: "Gated", Description: "d", Body: "b"})
	require.NoError(t, s.store.PutChannelPolicy(context.Background(), db.ChannelPolicy{ChannelID: "UCx", Enabled: true}))

	rr := s.doJSON(t, http.MethodPost, "/content/c1/email", gin.H{"email": "a@b.co"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.doJSON(t, http.MethodGet, "/auth/callback?error=access_denied", nil)
	require.Equal(t, http.StatusFound, rr.Code)

	rr = s.doJSON(t, http.MethodGet, "/content/c1", nil)
	attempt := decodeBody(t, rr)["attempt"].(map[string]interface{})
	assert.Equal(t, "awaiting_email", attempt["state"])
	assert.NotEmpty(t, attempt["reason"])

	// the pending marker is gone
	rr = s.doJSON(t, http.MethodGet, "/auth/callback?code=late", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	s := newTestServer(t)
	s.login(t)
	require.NoError(t, s.store.Close())

	rr := s.doJSON(t, http.MethodGet, "/admin/api/contents", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	rr = s.doJSON(t, http.MethodGet, "/content/c1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
