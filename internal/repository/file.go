// Package repository provides persistence implementations for the document
// ledger and the identity store: PostgreSQL-backed, JSON-file-backed and Redis-backed.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/atinyakov/DocLedger/internal/models"
)

// ledgerFile is the on-disk layout of a FileLedger.
type ledgerFile struct {
	Version   int               `json:"version"`
	Documents []models.Document `json:"documents"`
}

const ledgerFileVersion = 1

// FileLedger is a local ledger kept in memory and persisted as JSON after
// every mutation. Writers are serialized by a single lock; readers get copies.
type FileLedger struct {
	path string

	mu sync.RWMutex
	// docs[i] holds token id i+1; ids are dense because records are never removed.
	docs      []models.Document
	byContent map[string]int64
	onChange  func(live, retired int64)
}

// NewFileLedger loads the ledger stored at path. A missing file starts an
// empty ledger; an empty path keeps the ledger in memory only.
func NewFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{
		path:      path,
		byContent: make(map[string]int64),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLedger) load() error {
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read ledger: %w", err)
	}

	var state ledgerFile
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode ledger: %w", err)
	}
	for i, doc := range state.Documents {
		if doc.TokenID != int64(i+1) {
			return fmt.Errorf("corrupt ledger: token %d at position %d", doc.TokenID, i+1)
		}
		if doc.Live() {
			if _, dup := l.byContent[doc.ContentID]; dup {
				return fmt.Errorf("corrupt ledger: content id %q held by two live tokens", doc.ContentID)
			}
			l.byContent[doc.ContentID] = doc.TokenID
		}
	}
	l.docs = state.Documents
	return nil
}

// save must be called with mu held for writing.
func (l *FileLedger) save() error {
	if l.path == "" {
		return nil
	}
	return writeJSONAtomic(l.path, ledgerFile{Version: ledgerFileVersion, Documents: l.docs})
}

// OnChange registers fn to receive live and retired totals after each
// mutation; it is called once immediately with the current totals.
func (l *FileLedger) OnChange(fn func(live, retired int64)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
	l.notify()
}

// notify must be called with mu held.
func (l *FileLedger) notify() {
	if l.onChange == nil {
		return
	}
	live := int64(len(l.byContent))
	l.onChange(live, int64(len(l.docs))-live)
}

// Insert allocates the next token id and stores doc.
func (l *FileLedger) Insert(_ context.Context, doc models.Document) (models.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byContent[doc.ContentID]; exists {
		return models.Document{}, models.ErrDuplicateContent
	}

	doc.TokenID = int64(len(l.docs)) + 1
	doc.Retired = false
	l.docs = append(l.docs, doc)
	if err := l.save(); err != nil {
		l.docs = l.docs[:len(l.docs)-1]
		return models.Document{}, fmt.Errorf("persist ledger: %w", err)
	}
	l.byContent[doc.ContentID] = doc.TokenID
	l.notify()
	return doc, nil
}

// Update applies fn to the record under the write lock and persists the result.
func (l *FileLedger) Update(_ context.Context, tokenID int64, apply func(doc *models.Document) error) (models.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.index(tokenID)
	if !ok {
		return models.Document{}, models.ErrNotFound
	}

	prev := l.docs[idx]
	next := prev
	if err := apply(&next); err != nil {
		return models.Document{}, err
	}
	next.TokenID = prev.TokenID
	next.MintedAt = prev.MintedAt

	if next.Live() {
		if holder, taken := l.byContent[next.ContentID]; taken && holder != tokenID {
			return models.Document{}, models.ErrDuplicateContent
		}
	}

	l.docs[idx] = next
	if err := l.save(); err != nil {
		l.docs[idx] = prev
		return models.Document{}, fmt.Errorf("persist ledger: %w", err)
	}

	if prev.Live() {
		delete(l.byContent, prev.ContentID)
	}
	if next.Live() {
		l.byContent[next.ContentID] = tokenID
	}
	l.notify()
	return next, nil
}

// Get returns the record for tokenID.
func (l *FileLedger) Get(_ context.Context, tokenID int64) (models.Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.index(tokenID)
	if !ok {
		return models.Document{}, models.ErrNotFound
	}
	return l.docs[idx], nil
}

// GetByContentID returns the live record holding contentID.
func (l *FileLedger) GetByContentID(_ context.Context, contentID string) (models.Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tokenID, ok := l.byContent[contentID]
	if !ok {
		return models.Document{}, models.ErrNotFound
	}
	return l.docs[tokenID-1], nil
}

// ListByOwner returns owner's records, newest first.
func (l *FileLedger) ListByOwner(_ context.Context, owner string) ([]models.Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Document, 0)
	for i := len(l.docs) - 1; i >= 0; i-- {
		if l.docs[i].Owner == owner {
			out = append(out, l.docs[i])
		}
	}
	return out, nil
}

// List returns all records, newest first.
func (l *FileLedger) List(_ context.Context) ([]models.Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Document, 0, len(l.docs))
	for i := len(l.docs) - 1; i >= 0; i-- {
		out = append(out, l.docs[i])
	}
	return out, nil
}

func (l *FileLedger) index(tokenID int64) (int, bool) {
	if tokenID < 1 || tokenID > int64(len(l.docs)) {
		return 0, false
	}
	return int(tokenID - 1), true
}

// writeJSONAtomic encodes v next to path and renames it into place so a
// crash never leaves a truncated file behind.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
