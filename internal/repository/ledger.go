package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/lib/pq"
)

const documentColumns = `token_id, content_id, content_hash, name, owner, retired, minted_at, updated_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresLedger implements the document ledger against a PostgreSQL database.
// Token ids come from the BIGSERIAL sequence; the partial unique index on
// live content ids rejects duplicates.
type PostgresLedger struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresLedger creates a PostgresLedger using the provided *sql.DB.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.TokenID,
		&doc.ContentID,
		&doc.ContentHash,
		&doc.Name,
		&doc.Owner,
		&doc.Retired,
		&doc.MintedAt,
		&doc.UpdatedAt,
	)
	return doc, err
}

// Insert stores doc and returns it with its allocated token id.
func (s *PostgresLedger) Insert(ctx context.Context, doc models.Document) (models.Document, error) {
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO documents (content_id, content_hash, name, owner, retired, minted_at, updated_at)
		VALUES ($1, $2, $3, $4, false, $5, $6)
		RETURNING token_id
	`, doc.ContentID, doc.ContentHash, doc.Name, doc.Owner, doc.MintedAt, doc.UpdatedAt).Scan(&doc.TokenID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Document{}, models.ErrDuplicateContent
		}
		return models.Document{}, fmt.Errorf("insert document: %w", err)
	}
	doc.Retired = false
	return doc, nil
}

// Update locks the row, applies fn and writes the mutable columns back
// within a single transaction.
func (s *PostgresLedger) Update(ctx context.Context, tokenID int64, apply func(doc *models.Document) error) (models.Document, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Document{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	doc, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE token_id = $1 FOR UPDATE`, tokenID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Document{}, models.ErrNotFound
		}
		return models.Document{}, fmt.Errorf("select document: %w", err)
	}

	next := doc
	if err := apply(&next); err != nil {
		return models.Document{}, err
	}
	next.TokenID = doc.TokenID
	next.MintedAt = doc.MintedAt

	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		   SET content_id = $2, content_hash = $3, owner = $4, retired = $5, updated_at = $6
		 WHERE token_id = $1
	`, next.TokenID, next.ContentID, next.ContentHash, next.Owner, next.Retired, next.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Document{}, models.ErrDuplicateContent
		}
		return models.Document{}, fmt.Errorf("update document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Document{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// Get retrieves a single document by token id.
func (s *PostgresLedger) Get(ctx context.Context, tokenID int64) (models.Document, error) {
	doc, err := scanDocument(s.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE token_id = $1`, tokenID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Document{}, models.ErrNotFound
		}
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetByContentID retrieves the live document holding contentID.
func (s *PostgresLedger) GetByContentID(ctx context.Context, contentID string) (models.Document, error) {
	doc, err := scanDocument(s.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_id = $1 AND NOT retired`, contentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Document{}, models.ErrNotFound
		}
		return models.Document{}, fmt.Errorf("get document by content: %w", err)
	}
	return doc, nil
}

// ListByOwner fetches the owner's documents, newest first.
func (s *PostgresLedger) ListByOwner(ctx context.Context, owner string) ([]models.Document, error) {
	return s.query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner = $1 ORDER BY token_id DESC`, owner)
}

// List fetches every document, newest first.
func (s *PostgresLedger) List(ctx context.Context) ([]models.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY token_id DESC`)
}

func (s *PostgresLedger) query(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
