package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/DocLedger/internal/content"
	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/atinyakov/DocLedger/internal/repository"
	"github.com/atinyakov/DocLedger/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) NotifyMinted(doc models.Document, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, to)
}

type testServer struct {
	handler  http.Handler
	auth     *service.AuthService
	notifier *fakeNotifier
}

func newTestServer(t *testing.T, policy service.Policy) *testServer {
	t.Helper()
	log := zap.NewNop()

	users, err := repository.NewFileUserRepository("")
	require.NoError(t, err)
	ledger, err := repository.NewFileLedger("")
	require.NoError(t, err)
	store, err := content.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	authSvc := service.NewAuthService(users, service.NewTokenIssuer("test-secret", "docledger", time.Hour), nil, log)
	_, err = authSvc.SeedAdmin(context.Background(), "admin", "Password123")
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	registry := service.NewRegistry(ledger, policy, log)

	h := NewRouter(Router{
		Auth:          &AuthHandler{AuthService: authSvc, Logger: log},
		Documents:     &DocumentHandler{Registry: registry, Owners: authSvc, Notifier: notifier, Logger: log},
		Files:         &FileHandler{Content: content.NewService(store, log), Logger: log},
		Health:        &HealthHandler{Logger: log},
		Authenticator: authSvc,
		Metrics:       promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	}, log)

	return &testServer{handler: h, auth: authSvc, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// register creates a user and returns its token and user ID.
func (s *testServer) register(t *testing.T, username string) (string, string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"`+username+`","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))

	rec = s.do(t, http.MethodGet, "/api/auth/me", tok.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	return tok.Token, me.ID
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, err := s.auth.Login(context.Background(), "admin", "Password123")
	require.NoError(t, err)
	return token
}

func decodeDoc(t *testing.T, rec *httptest.ResponseRecorder) models.Document {
	t.Helper()
	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc), rec.Body.String())
	return doc
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body["error"]
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t, service.Policy{})

	token, id := s.register(t, "alice")
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, id)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{"duplicate username", "/api/auth/register", `{"username":"alice","password":"x"}`, http.StatusBadRequest, "user already exists"},
		{"missing password", "/api/auth/register", `{"username":"bob"}`, http.StatusBadRequest, "password is required"},
		{"unknown field", "/api/auth/register", `{"username":"bob","password":"x","role":"admin"}`, http.StatusBadRequest, "malformed"},
		{"malformed", "/api/auth/login", `not json`, http.StatusBadRequest, "malformed"},
		{"wrong password", "/api/auth/login", `{"username":"alice","password":"nope"}`, http.StatusBadRequest, "invalid credentials"},
		{"unknown user", "/api/auth/login", `{"username":"ghost","password":"pw"}`, http.StatusBadRequest, "invalid credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, errorBody(t, rec), tt.wantErr)
		})
	}

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"alice","password":"pw"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestMe(t *testing.T) {
	s := newTestServer(t, service.Policy{})

	rec := s.do(t, http.MethodGet, "/api/auth/me", s.adminToken(t), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "admin", me.Username)
	assert.Equal(t, "admin", me.Role)

	rec = s.do(t, http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("x-auth-token", s.adminToken(t))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestServer(t, service.Policy{})
	aliceToken, aliceID := s.register(t, "alice")
	bobToken, bobID := s.register(t, "bob")

	// mint
	rec := s.do(t, http.MethodPost, "/api/documents", aliceToken,
		`{"contentId":"cid-1","contentHash":"abc","name":"Diploma","recipientEmail":"alice@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decodeDoc(t, rec)
	assert.Equal(t, int64(1), doc.TokenID)
	assert.Equal(t, aliceID, doc.Owner)
	assert.Equal(t, []string{"alice@example.com"}, s.notifier.calls)

	// duplicate content
	rec = s.do(t, http.MethodPost, "/api/documents", bobToken, `{"contentId":"cid-1","contentHash":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrDuplicateContent.Error(), errorBody(t, rec))

	// get and by-content
	rec = s.do(t, http.MethodGet, "/api/documents/1", bobToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cid-1", decodeDoc(t, rec).ContentID)

	rec = s.do(t, http.MethodGet, "/api/documents/by-content/cid-1", bobToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decodeDoc(t, rec).TokenID)

	// transfer: stranger, then owner by username
	rec = s.do(t, http.MethodPut, "/api/documents/1", bobToken, `{"owner":"bob"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/documents/1", aliceToken, `{"owner":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, bobID, decodeDoc(t, rec).Owner)

	rec = s.do(t, http.MethodGet, "/api/documents", bobToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bobDocs []models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bobDocs))
	require.Len(t, bobDocs, 1)

	rec = s.do(t, http.MethodGet, "/api/documents", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	// burn
	rec = s.do(t, http.MethodDelete, "/api/documents/1", aliceToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/documents/1", bobToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "document burned")

	rec = s.do(t, http.MethodDelete, "/api/documents/1", bobToken, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/documents/1", bobToken, `{"owner":"alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/documents/1", bobToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	burned := decodeDoc(t, rec)
	assert.True(t, burned.Retired)
	assert.Empty(t, burned.ContentID)
	assert.Empty(t, burned.ContentHash)

	rec = s.do(t, http.MethodGet, "/api/documents/by-content/cid-1", bobToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// content id is free again, new token id
	rec = s.do(t, http.MethodPost, "/api/documents", aliceToken, `{"contentId":"cid-1","contentHash":"abc"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(2), decodeDoc(t, rec).TokenID)
}

func TestMintOwnerRules(t *testing.T) {
	s := newTestServer(t, service.Policy{})
	aliceToken, _ := s.register(t, "alice")
	_, bobID := s.register(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/documents", aliceToken, `{"contentId":"c","contentHash":"h","owner":"bob"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/documents", aliceToken, `{"contentId":"c","contentHash":"h","owner":"ghost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "not a registered user")

	rec = s.do(t, http.MethodPost, "/api/documents", s.adminToken(t), `{"contentId":"c","contentHash":"h","owner":"bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, bobID, decodeDoc(t, rec).Owner)

	rec = s.do(t, http.MethodPost, "/api/documents", s.adminToken(t), `{"contentId":"d","contentHash":"h","owner":"`+bobID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, bobID, decodeDoc(t, rec).Owner)
}

func TestMintAdminOnlyPolicy(t *testing.T) {
	s := newTestServer(t, service.Policy{AdminOnlyMint: true})
	aliceToken, _ := s.register(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/documents", aliceToken, `{"contentId":"c","contentHash":"h"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/documents", s.adminToken(t), `{"contentId":"c","contentHash":"h","owner":"alice"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDocumentRequestErrors(t *testing.T) {
	s := newTestServer(t, service.Policy{})
	token, _ := s.register(t, "alice")

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       string
		wantStatus int
	}{
		{"no credentials", http.MethodGet, "/api/documents", "", "", http.StatusUnauthorized},
		{"bad credentials", http.MethodGet, "/api/documents", "forged", "", http.StatusUnauthorized},
		{"missing content id", http.MethodPost, "/api/documents", token, `{"contentHash":"h"}`, http.StatusBadRequest},
		{"blank content id", http.MethodPost, "/api/documents", token, `{"contentId":"  ","contentHash":"h"}`, http.StatusBadRequest},
		{"bad email", http.MethodPost, "/api/documents", token, `{"contentId":"c","contentHash":"h","recipientEmail":"nope"}`, http.StatusBadRequest},
		{"unknown token", http.MethodGet, "/api/documents/99", token, "", http.StatusNotFound},
		{"zero token", http.MethodGet, "/api/documents/0", token, "", http.StatusNotFound},
		{"non numeric token", http.MethodGet, "/api/documents/abc", token, "", http.StatusBadRequest},
		{"transfer unknown token", http.MethodPut, "/api/documents/99", token, `{"owner":"alice"}`, http.StatusNotFound},
		{"transfer missing owner", http.MethodPut, "/api/documents/1", token, `{}`, http.StatusBadRequest},
		{"burn unknown token", http.MethodDelete, "/api/documents/99", token, "", http.StatusNotFound},
		{"list all as user", http.MethodGet, "/api/documents/all", token, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestListAll(t *testing.T) {
	s := newTestServer(t, service.Policy{})
	aliceToken, _ := s.register(t, "alice")
	bobToken, _ := s.register(t, "bob")

	for _, tc := range []struct{ token, cid string }{{aliceToken, "a"}, {bobToken, "b"}} {
		rec := s.do(t, http.MethodPost, "/api/documents", tc.token, `{"contentId":"`+tc.cid+`","contentHash":"h"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/documents/all", s.adminToken(t), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].TokenID)
}

func TestUploadThenMint(t *testing.T) {
	s := newTestServer(t, service.Policy{})
	token, _ := s.register(t, "alice")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "diploma.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var up content.Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.True(t, strings.HasPrefix(up.ContentID, "documents/"))
	assert.True(t, strings.HasPrefix(up.ContentHash, "0x"))

	rec = s.do(t, http.MethodPost, "/api/documents", token, `{"contentId":"`+up.ContentID+`","contentHash":"`+up.ContentHash+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/documents/by-content/"+up.ContentID, token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, up.ContentHash, decodeDoc(t, rec).ContentHash)
}

func TestUploadRequiresFile(t *testing.T) {
	s := newTestServer(t, service.Policy{})
	token, _ := s.register(t, "alice")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, service.Policy{})

	rec := s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
