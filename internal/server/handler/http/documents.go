package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/atinyakov/DocLedger/internal/middleware"
	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/atinyakov/DocLedger/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Registry is the document registry as seen by the front door.
type Registry interface {
	Mint(ctx context.Context, requester models.Identity, req service.MintRequest) (models.Document, error)
	Transfer(ctx context.Context, requester models.Identity, tokenID int64, newOwner string) (models.Document, error)
	Burn(ctx context.Context, requester models.Identity, tokenID int64) (models.Document, error)
	Get(ctx context.Context, tokenID int64) (models.Document, error)
	GetByContentID(ctx context.Context, contentID string) (models.Document, error)
	ListByOwner(ctx context.Context, owner string) ([]models.Document, error)
	ListAll(ctx context.Context, requester models.Identity) ([]models.Document, error)
}

// OwnerResolver maps a username or user ID to a user ID.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, ref string) (string, error)
}

// MintNotifier is told about every successful mint that names a recipient.
type MintNotifier interface {
	NotifyMinted(doc models.Document, to string)
}

// DocumentHandler serves the document registry endpoints.
type DocumentHandler struct {
	Registry Registry
	Owners   OwnerResolver
	// Notifier may be nil.
	Notifier MintNotifier
	Logger   *zap.Logger
}

// MintRequest is the JSON payload for minting a document.
type MintRequest struct {
	ContentID      string `json:"contentId" validate:"required,max=256"`
	ContentHash    string `json:"contentHash" validate:"required,max=256"`
	Owner          string `json:"owner,omitempty" validate:"omitempty,max=256"`
	Name           string `json:"name,omitempty" validate:"omitempty,max=256"`
	RecipientEmail string `json:"recipientEmail,omitempty" validate:"omitempty,email"`
}

// TransferRequest is the JSON payload for transferring a document.
type TransferRequest struct {
	Owner string `json:"owner" validate:"required,max=256"`
}

// Mint creates a document and, when a recipient email is given, schedules
// a notification that never affects the response.
func (h *DocumentHandler) Mint(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())

	var req MintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}

	owner := ""
	if strings.TrimSpace(req.Owner) != "" {
		resolved, err := h.resolveOwner(r.Context(), req.Owner)
		if err != nil {
			writeError(w, h.Logger, r, err)
			return
		}
		owner = resolved
	}

	doc, err := h.Registry.Mint(r.Context(), identity, service.MintRequest{
		Owner:       owner,
		ContentID:   req.ContentID,
		ContentHash: req.ContentHash,
		Name:        req.Name,
	})
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}

	if req.RecipientEmail != "" && h.Notifier != nil {
		h.Notifier.NotifyMinted(doc, req.RecipientEmail)
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ListOwn returns the caller's documents, newest first.
func (h *DocumentHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	docs, err := h.Registry.ListByOwner(r.Context(), identity.ID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// ListAll returns every document. Admin only.
func (h *DocumentHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	docs, err := h.Registry.ListAll(r.Context(), identity)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// Get returns a single document by token id.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	doc, err := h.Registry.Get(r.Context(), tokenID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetByContent returns the live document referencing the content id in the
// wildcard path segment.
func (h *DocumentHandler) GetByContent(w http.ResponseWriter, r *http.Request) {
	contentID, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, h.Logger, r, fmt.Errorf("%w: malformed content id", models.ErrInvalidInput))
		return
	}
	doc, err := h.Registry.GetByContentID(r.Context(), contentID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Transfer hands a document to another user.
func (h *DocumentHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	tokenID, err := tokenIDParam(r)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}

	var req TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	owner, err := h.resolveOwner(r.Context(), req.Owner)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}

	doc, err := h.Registry.Transfer(r.Context(), identity, tokenID, owner)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Burn retires a document.
func (h *DocumentHandler) Burn(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	tokenID, err := tokenIDParam(r)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	if _, err := h.Registry.Burn(r.Context(), identity, tokenID); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "document burned", "tokenId": tokenID})
}

func (h *DocumentHandler) resolveOwner(ctx context.Context, ref string) (string, error) {
	id, err := h.Owners.ResolveOwner(ctx, ref)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", fmt.Errorf("%w: owner %q is not a registered user", models.ErrInvalidInput, strings.TrimSpace(ref))
		}
		return "", err
	}
	return id, nil
}

func tokenIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "tokenId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: token id must be an integer", models.ErrInvalidInput)
	}
	return id, nil
}
