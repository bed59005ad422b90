package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/lib/pq"
)

var documentRowColumns = []string{"token_id", "content_id", "content_hash", "name", "owner", "retired", "minted_at", "updated_at"}

func setupLedgerMock(t *testing.T) (*PostgresLedger, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	ledger := NewPostgresLedger(db)
	cleanup := func() {
		db.Close()
	}
	return ledger, mock, cleanup
}

func TestLedgerInsert_Success(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	now := time.Now().UTC()
	doc := models.Document{ContentID: "cid-1", ContentHash: "abc", Owner: "alice", MintedAt: now, UpdatedAt: now}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents (content_id, content_hash, name, owner, retired, minted_at, updated_at)`)).
		WithArgs("cid-1", "abc", "", "alice", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"token_id"}).AddRow(int64(1)))

	got, err := ledger.Insert(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TokenID != 1 || got.Owner != "alice" || got.Retired {
		t.Errorf("unexpected document: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedgerInsert_DuplicateContent(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_live_content_idx"})

	_, err := ledger.Insert(context.Background(), models.Document{ContentID: "cid-1", ContentHash: "abc", Owner: "bob"})
	if !errors.Is(err, models.ErrDuplicateContent) {
		t.Errorf("Insert error = %v; want ErrDuplicateContent", err)
	}
}

func TestLedgerInsert_Error(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents`)).
		WillReturnError(errors.New("conn reset"))

	_, err := ledger.Insert(context.Background(), models.Document{ContentID: "cid", ContentHash: "h", Owner: "o"})
	if err == nil || !regexp.MustCompile(`insert document`).MatchString(err.Error()) {
		t.Errorf("expected insert document error, got %v", err)
	}
}

func TestLedgerUpdate_Success(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	minted := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	updated := minted.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE token_id = $1 FOR UPDATE`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).
			AddRow(int64(3), "cid-3", "h3", "Diploma", "alice", false, minted, minted))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents`)).
		WithArgs(int64(3), "cid-3", "h3", "bob", false, updated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := ledger.Update(context.Background(), 3, func(d *models.Document) error {
		d.Owner = "bob"
		d.UpdatedAt = updated
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Owner != "bob" || got.TokenID != 3 || !got.MintedAt.Equal(minted) || got.Name != "Diploma" {
		t.Errorf("unexpected document: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedgerUpdate_NotFound(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns))
	mock.ExpectRollback()

	_, err := ledger.Update(context.Background(), 42, func(d *models.Document) error {
		t.Error("apply must not run for a missing document")
		return nil
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Update error = %v; want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedgerUpdate_ApplyErrorRollsBack(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).
			AddRow(int64(1), "", "", "", "alice", true, now, now))
	mock.ExpectRollback()

	_, err := ledger.Update(context.Background(), 1, func(d *models.Document) error {
		if d.Retired {
			return models.ErrAlreadyRetired
		}
		return nil
	})
	if !errors.Is(err, models.ErrAlreadyRetired) {
		t.Errorf("Update error = %v; want ErrAlreadyRetired", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedgerGet_NotFound(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE token_id = $1`)).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	if _, err := ledger.Get(context.Background(), 9); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Get error = %v; want ErrNotFound", err)
	}
}

func TestLedgerGetByContentID(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE content_id = $1 AND NOT retired`)).
		WithArgs("cid-7").
		WillReturnRows(sqlmock.NewRows(documentRowColumns).
			AddRow(int64(7), "cid-7", "h7", "", "carol", false, now, now))

	doc, err := ledger.GetByContentID(context.Background(), "cid-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.TokenID != 7 || doc.Owner != "carol" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedgerListByOwner(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows(documentRowColumns).
		AddRow(int64(5), "c5", "h5", "", "alice", false, now, now).
		AddRow(int64(2), "", "", "", "alice", true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE owner = $1 ORDER BY token_id DESC`)).
		WithArgs("alice").
		WillReturnRows(rows)

	docs, err := ledger.ListByOwner(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 || docs[0].TokenID != 5 || docs[1].TokenID != 2 || !docs[1].Retired {
		t.Errorf("unexpected documents: %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedgerList_Empty(t *testing.T) {
	ledger, mock, cleanup := setupLedgerMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents ORDER BY token_id DESC`)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns))

	docs, err := ledger.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", docs)
	}
}
