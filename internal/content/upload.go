package content

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/atinyakov/DocLedger/internal/models"
	"go.uber.org/zap"
)

// MaxUploadSize bounds a single uploaded document.
const MaxUploadSize = 20 << 20

const keyPrefix = "documents/"

// Upload describes a stored document.
type Upload struct {
	ContentID   string `json:"contentId"`
	ContentHash string `json:"contentHash"`
	Size        int64  `json:"size"`
	Filename    string `json:"filename,omitempty"`
}

// Service content-addresses uploads into a Store.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService returns a Service writing to store.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log.With(zap.String("component", "content"))}
}

// Upload reads at most MaxUploadSize bytes from r, stores them under their
// SHA-256 digest and returns the derived identifiers. Identical bytes always
// produce the same content id.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return Upload{}, fmt.Errorf("%w: file is empty", models.ErrInvalidInput)
	}
	if len(data) > MaxUploadSize {
		return Upload{}, fmt.Errorf("%w: file exceeds %d bytes", models.ErrInvalidInput, MaxUploadSize)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := keyPrefix + digest

	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), http.DetectContentType(data)); err != nil {
		return Upload{}, fmt.Errorf("store upload: %w", err)
	}
	s.log.Info("content stored", zap.String("content_id", key), zap.Int("size", len(data)))

	return Upload{
		ContentID:   key,
		ContentHash: "0x" + digest,
		Size:        int64(len(data)),
		Filename:    filename,
	}, nil
}
