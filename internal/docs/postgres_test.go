package docs

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewPGStore(db), mock, func() { db.Close() }
}

func TestPGStoreCreateRoot(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	root := &DocumentRoot{
		RootHash:  testRootHash,
		Uploader:  uploaderID.Address,
		Domain:    "finance",
		Title:     "Q2 report",
		TxHash:    "0xupload",
		CreatedAt: now,
		Versions: []Version{{
			Hash:       testRootHash,
			FileCID:    "bafyfile",
			MetaCID:    "bafymeta",
			UploadedAt: now,
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("insert into document_roots").
		WithArgs(root.RootHash, root.Uploader, root.Domain, root.Title, "", root.TxHash, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into document_versions").
		WithArgs(testRootHash, testRootHash, "bafyfile", "bafymeta", "", "", "", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.CreateRoot(context.Background(), root); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreCreateRootDuplicate(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("insert into document_roots").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.CreateRoot(context.Background(), &DocumentRoot{
		RootHash:  testRootHash,
		Versions:  []Version{{Hash: testRootHash}},
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreListPendingGroupsVersions(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"root_hash", "title", "domain", "version_hash", "meta_cid"}).
		AddRow(testRootHash, "Q2 report", "finance", testRootHash, "bafymeta").
		AddRow(testRootHash, "Q2 report", "finance", otherHash, "bafymeta2")
	mock.ExpectQuery("select r.root_hash, r.title, r.domain, v.version_hash, v.meta_cid").
		WithArgs(now, "finance").
		WillReturnRows(rows)

	pending, err := store.ListPending(context.Background(), "finance", now)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || len(pending[0].Versions) != 2 {
		t.Fatalf("expected one doc with two versions, got %+v", pending)
	}
	if pending[0].Versions[1].Hash != otherHash {
		t.Fatalf("unexpected second version: %+v", pending[0].Versions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreSetVersionStatusNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("update document_versions").
		WithArgs(otherHash, true, verifierID.Address).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetVersionStatus(context.Background(), otherHash, true, verifierID.Address)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGKeyStoreRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	keys := NewPGKeyStore(db)

	mock.ExpectExec("insert into key_records").
		WithArgs(testRootHash, "a2V5", "aXY=", uploaderID.Address).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &KeyRecord{
		VersionHash:  testRootHash,
		AESKeyBase64: "a2V5",
		IVBase64:     "aXY=",
		Uploader:     uploaderID.Address,
	}
	if err := keys.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	created := time.Now().UTC()
	mock.ExpectQuery("select version_hash, aes_key_base64, iv_base64, uploader_address, created_at").
		WithArgs(testRootHash).
		WillReturnRows(sqlmock.NewRows([]string{"version_hash", "aes_key_base64", "iv_base64", "uploader_address", "created_at"}).
			AddRow(testRootHash, "a2V5", "aXY=", uploaderID.Address, created))

	got, err := keys.Find(context.Background(), testRootHash)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.AESKeyBase64 != "a2V5" || got.Uploader != uploaderID.Address {
		t.Fatalf("unexpected record: %+v", got)
	}

	mock.ExpectQuery("select version_hash, aes_key_base64, iv_base64, uploader_address, created_at").
		WithArgs(otherHash).
		WillReturnError(sql.ErrNoRows)
	if _, err := keys.Find(context.Background(), otherHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
