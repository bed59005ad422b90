// Package http provides the DocLedger front door: HTTP handlers for the auth
// gate, the document registry and uploads, and the chi router tying them together.
package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/DocLedger/internal/middleware"
	"github.com/atinyakov/DocLedger/internal/models"
	"go.uber.org/zap"
)

// AuthService defines the authentication operations required by the
// HTTP handlers.
type AuthService interface {
	// Register creates a regular user and returns a credential.
	Register(ctx context.Context, username, password string) (string, error)
	// Login exchanges a username and password for a credential.
	Login(ctx context.Context, username, password string) (string, error)
}

// AuthHandler handles HTTP requests for user registration and login.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
	Logger      *zap.Logger
}

// CredentialsRequest is the JSON payload for registration and login.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// TokenResponse carries an issued credential.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse describes the authenticated identity.
type MeResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Register handles user registration requests.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	token, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Login handles password login requests.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Me returns the identity behind the presented credential.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, h.Logger, r, models.ErrUnauthenticated)
		return
	}
	role := models.RoleUser
	if identity.IsAdmin {
		role = models.RoleAdmin
	}
	writeJSON(w, http.StatusOK, MeResponse{ID: identity.ID, Username: identity.Username, Role: string(role)})
}
