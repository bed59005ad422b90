// Package service provides the document registry state machine and the
// authentication services, delegating persistence to repository interfaces.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/atinyakov/DocLedger/internal/models"
	"go.uber.org/zap"
)

// maxFieldLen bounds owner identifiers, content ids and hashes.
const maxFieldLen = 256

// Ledger is the persistence capability every registry backend provides.
// Implementations must allocate token ids atomically, reject a second live
// record with the same content id, and run Update's apply function while
// holding exclusive access to the record.
type Ledger interface {
	// Insert stores doc with a freshly allocated TokenID and returns it.
	// It returns models.ErrDuplicateContent if a live record has doc.ContentID.
	Insert(ctx context.Context, doc models.Document) (models.Document, error)
	// Update loads the record, passes it to apply and persists the result
	// only if apply returns nil.
	Update(ctx context.Context, tokenID int64, apply func(doc *models.Document) error) (models.Document, error)
	// Get returns the record for tokenID, retired or not.
	Get(ctx context.Context, tokenID int64) (models.Document, error)
	// GetByContentID returns the live record holding contentID.
	GetByContentID(ctx context.Context, contentID string) (models.Document, error)
	// ListByOwner returns the owner's records, most recently minted first.
	ListByOwner(ctx context.Context, owner string) ([]models.Document, error)
	// List returns every record, most recently minted first.
	List(ctx context.Context) ([]models.Document, error)
}

// Recorder observes the outcome of registry and auth operations.
type Recorder interface {
	ObserveOperation(operation string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error) {}

// MintRequest carries the caller-supplied fields of a new document.
type MintRequest struct {
	// Owner is the recipient's user ID; empty means the requester.
	Owner       string
	ContentID   string
	ContentHash string
	Name        string
}

// Registry enforces mint, transfer and burn rules on top of a Ledger.
type Registry struct {
	ledger   Ledger
	policy   Policy
	recorder Recorder
	log      *zap.Logger
	now      func() time.Time
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRecorder reports every operation outcome to rec.
func WithRecorder(rec Recorder) RegistryOption {
	return func(r *Registry) { r.recorder = rec }
}

// WithClock overrides the time source used for mintedAt and updatedAt.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry constructs a Registry backed by ledger.
func NewRegistry(ledger Ledger, policy Policy, log *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		ledger:   ledger,
		policy:   policy,
		recorder: nopRecorder{},
		log:      log.With(zap.String("component", "registry")),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mint creates a new document owned by req.Owner (or the requester).
func (r *Registry) Mint(ctx context.Context, requester models.Identity, req MintRequest) (doc models.Document, err error) {
	defer func() { r.recorder.ObserveOperation("mint", err) }()

	if requester.ID == "" {
		return models.Document{}, models.ErrUnauthenticated
	}

	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = requester.ID
	}
	if err := ValidateOwner(owner); err != nil {
		return models.Document{}, err
	}
	contentID := strings.TrimSpace(req.ContentID)
	if err := validateField("content id", contentID); err != nil {
		return models.Document{}, err
	}
	contentHash := strings.TrimSpace(req.ContentHash)
	if err := validateField("content hash", contentHash); err != nil {
		return models.Document{}, err
	}

	now := r.now()
	doc = models.Document{
		ContentID:   contentID,
		ContentHash: contentHash,
		Name:        strings.TrimSpace(req.Name),
		Owner:       owner,
		MintedAt:    now,
		UpdatedAt:   now,
	}
	if err := r.policy.Authorize(requester, &doc, ActionMint); err != nil {
		return models.Document{}, err
	}

	doc, err = r.ledger.Insert(ctx, doc)
	if err != nil {
		return models.Document{}, err
	}
	r.log.Info("document minted",
		zap.Int64("token_id", doc.TokenID),
		zap.String("owner", doc.Owner),
		zap.String("requester", requester.ID),
	)
	return doc, nil
}

// Transfer hands a live document to newOwner.
func (r *Registry) Transfer(ctx context.Context, requester models.Identity, tokenID int64, newOwner string) (doc models.Document, err error) {
	defer func() { r.recorder.ObserveOperation("transfer", err) }()

	if requester.ID == "" {
		return models.Document{}, models.ErrUnauthenticated
	}
	newOwner = strings.TrimSpace(newOwner)
	if err := ValidateOwner(newOwner); err != nil {
		return models.Document{}, err
	}
	if tokenID <= 0 {
		return models.Document{}, models.ErrNotFound
	}

	var previous string
	doc, err = r.ledger.Update(ctx, tokenID, func(d *models.Document) error {
		if d.Retired {
			return models.ErrAlreadyRetired
		}
		if err := r.policy.Authorize(requester, d, ActionTransfer); err != nil {
			return err
		}
		previous = d.Owner
		d.Owner = newOwner
		d.UpdatedAt = r.now()
		return nil
	})
	if err != nil {
		return models.Document{}, err
	}
	r.log.Info("document transferred",
		zap.Int64("token_id", tokenID),
		zap.String("from", previous),
		zap.String("to", newOwner),
		zap.String("requester", requester.ID),
	)
	return doc, nil
}

// Burn retires a live document, clearing its content reference and hash.
// The record itself is kept so the token id stays reserved.
func (r *Registry) Burn(ctx context.Context, requester models.Identity, tokenID int64) (doc models.Document, err error) {
	defer func() { r.recorder.ObserveOperation("burn", err) }()

	if requester.ID == "" {
		return models.Document{}, models.ErrUnauthenticated
	}
	if tokenID <= 0 {
		return models.Document{}, models.ErrNotFound
	}

	doc, err = r.ledger.Update(ctx, tokenID, func(d *models.Document) error {
		if d.Retired {
			return models.ErrAlreadyRetired
		}
		if err := r.policy.Authorize(requester, d, ActionBurn); err != nil {
			return err
		}
		d.Retired = true
		d.ContentID = ""
		d.ContentHash = ""
		d.UpdatedAt = r.now()
		return nil
	})
	if err != nil {
		return models.Document{}, err
	}
	r.log.Info("document burned",
		zap.Int64("token_id", tokenID),
		zap.String("owner", doc.Owner),
		zap.String("requester", requester.ID),
	)
	return doc, nil
}

// Get returns a document by token id. Retired documents are returned with
// their content fields empty.
func (r *Registry) Get(ctx context.Context, tokenID int64) (models.Document, error) {
	if tokenID <= 0 {
		return models.Document{}, models.ErrNotFound
	}
	return r.ledger.Get(ctx, tokenID)
}

// GetByContentID returns the live document that references contentID.
func (r *Registry) GetByContentID(ctx context.Context, contentID string) (models.Document, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return models.Document{}, models.ErrNotFound
	}
	return r.ledger.GetByContentID(ctx, contentID)
}

// ListByOwner returns the documents currently owned by owner, newest first.
func (r *Registry) ListByOwner(ctx context.Context, owner string) ([]models.Document, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	return r.ledger.ListByOwner(ctx, owner)
}

// ListAll returns every document, including retired ones, newest first.
// Only admins may call it.
func (r *Registry) ListAll(ctx context.Context, requester models.Identity) ([]models.Document, error) {
	if err := r.policy.Authorize(requester, nil, ActionListAll); err != nil {
		return nil, err
	}
	return r.ledger.List(ctx)
}

// ValidateOwner checks that owner is a well-formed identity reference.
func ValidateOwner(owner string) error {
	return validateField("owner", owner)
}

func validateField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", models.ErrInvalidInput, name)
	}
	if len(value) > maxFieldLen {
		return fmt.Errorf("%w: %s is too long", models.ErrInvalidInput, name)
	}
	if strings.IndexFunc(value, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %s must not contain whitespace", models.ErrInvalidInput, name)
	}
	return nil
}
