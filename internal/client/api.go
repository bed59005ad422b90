// Package client is the command-line side of DocLedger: an HTTP API client,
// a persisted session and interactive prompts.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/DocLedger/internal/content"
	"github.com/atinyakov/DocLedger/internal/models"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// MintParams describes a document to mint.
type MintParams struct {
	ContentID      string `json:"contentId"`
	ContentHash    string `json:"contentHash"`
	Owner          string `json:"owner"`
	Name           string `json:"name,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
}

// Me is the identity the current token resolves to.
type Me struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// API talks to a DocLedger server.
type API struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewHTTPClient returns an http.Client that trusts only the CA in caFile.
// An empty caFile yields a client using the system roots.
func NewHTTPClient(caFile string) (*http.Client, error) {
	if caFile == "" {
		return &http.Client{Timeout: 30 * time.Second}, nil
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs:    caPool,
			MinVersion: tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}, nil
}

// NewAPI creates a client for baseURL. A nil httpClient uses http.DefaultClient.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetToken sets the bearer token sent with protected calls.
func (a *API) SetToken(token string) { a.token = token }

// Token returns the current bearer token.
func (a *API) Token() string { return a.token }

// Register creates an account and stores the returned token.
func (a *API) Register(ctx context.Context, username, password string) error {
	return a.authenticate(ctx, "/api/auth/register", username, password)
}

// Login exchanges credentials for a token and stores it.
func (a *API) Login(ctx context.Context, username, password string) error {
	return a.authenticate(ctx, "/api/auth/login", username, password)
}

func (a *API) authenticate(ctx context.Context, path, username, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := a.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return err
	}
	if out.Token == "" {
		return errors.New("server returned an empty token")
	}
	a.token = out.Token
	return nil
}

// Me returns the authenticated identity.
func (a *API) Me(ctx context.Context) (Me, error) {
	var me Me
	err := a.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &me)
	return me, err
}

// UploadFile sends the file at path to the content store.
func (a *API) UploadFile(ctx context.Context, path string) (content.Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return content.Upload{}, err
	}
	defer f.Close()
	return a.Upload(ctx, filepath.Base(path), f)
}

// Upload streams r as a multipart form file named filename.
func (a *API) Upload(ctx context.Context, filename string, r io.Reader) (content.Upload, error) {
	var up content.Upload

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := a.newRequest(ctx, http.MethodPost, "/api/files", pr)
	if err != nil {
		pr.Close()
		return up, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	err = a.do(req, &up)
	return up, err
}

// Mint registers a new document.
func (a *API) Mint(ctx context.Context, p MintParams) (models.Document, error) {
	var doc models.Document
	err := a.doJSON(ctx, http.MethodPost, "/api/documents", p, &doc)
	return doc, err
}

// ListOwn lists the caller's documents.
func (a *API) ListOwn(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	err := a.doJSON(ctx, http.MethodGet, "/api/documents", nil, &docs)
	return docs, err
}

// ListAll lists every document. Admin only.
func (a *API) ListAll(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	err := a.doJSON(ctx, http.MethodGet, "/api/documents/all", nil, &docs)
	return docs, err
}

// Get fetches one document.
func (a *API) Get(ctx context.Context, tokenID int64) (models.Document, error) {
	var doc models.Document
	err := a.doJSON(ctx, http.MethodGet, documentPath(tokenID), nil, &doc)
	return doc, err
}

// GetByContent fetches the live document holding contentID.
func (a *API) GetByContent(ctx context.Context, contentID string) (models.Document, error) {
	var doc models.Document
	err := a.doJSON(ctx, http.MethodGet, "/api/documents/by-content/"+escapeContentID(contentID), nil, &doc)
	return doc, err
}

// Transfer hands a document to owner.
func (a *API) Transfer(ctx context.Context, tokenID int64, owner string) (models.Document, error) {
	var doc models.Document
	err := a.doJSON(ctx, http.MethodPut, documentPath(tokenID), map[string]string{"owner": owner}, &doc)
	return doc, err
}

// Burn retires a document.
func (a *API) Burn(ctx context.Context, tokenID int64) error {
	return a.doJSON(ctx, http.MethodDelete, documentPath(tokenID), nil, nil)
}

func documentPath(tokenID int64) string {
	return "/api/documents/" + strconv.FormatInt(tokenID, 10)
}

// escapeContentID escapes each segment and keeps the slashes, which the
// server route matches as a wildcard.
func escapeContentID(contentID string) string {
	parts := strings.Split(contentID, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (a *API) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	return req, nil
}

func (a *API) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := a.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.do(req, out)
}

func (a *API) do(req *http.Request, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
