package credstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sitemapindexerpro/workercore/infrastructure/crypto"
	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/internal/model"
)

const testPassphrase = "a-master-passphrase-at-least-32-chars"

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return New(db, testPassphrase), mock, func() { db.Close() }
}

func TestPutEncryptsAndUpserts(t *testing.T) {
	s, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO credentials").WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Put(context.Background(), "proj-1", model.EngineGoogle, "service_account", []byte(`{"type":"service_account"}`))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRoundTripsThroughEncryption(t *testing.T) {
	s, mock, cleanup := newMockStore(t)
	defer cleanup()

	plaintext := []byte("super-secret-indexnow-key")
	env, err := crypto.Encrypt(testPassphrase, plaintext)
	if err != nil {
		t.Fatalf("crypto.Encrypt: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "project_id", "engine", "type", "encrypted_data", "iv", "auth_tag", "salt", "is_valid"}).
		AddRow("cred-1", "proj-1", string(model.EngineIndexNow), "indexnow_key", env.EncryptedData, env.IV, env.AuthTag, env.Salt, true)
	mock.ExpectQuery("SELECT id, project_id, engine, type, encrypted_data").WillReturnRows(rows)
	mock.ExpectExec("UPDATE credentials SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := s.Get(context.Background(), "proj-1", model.EngineIndexNow)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("Get() = %q, want %q", got, plaintext)
	}
}

func TestGetRejectsInvalidatedCredential(t *testing.T) {
	s, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "project_id", "engine", "type", "encrypted_data", "iv", "auth_tag", "salt", "is_valid"}).
		AddRow("cred-1", "proj-1", string(model.EngineGoogle), "service_account", []byte("x"), []byte("y"), []byte("z"), []byte("w"), false)
	mock.ExpectQuery("SELECT id, project_id, engine, type, encrypted_data").WillReturnRows(rows)

	_, err := s.Get(context.Background(), "proj-1", model.EngineGoogle)
	if err == nil {
		t.Fatal("Get() should reject a credential marked invalid")
	}
	se := workererrors.GetServiceError(err)
	if se == nil || se.Code != workererrors.ErrCodeInvalidCredential {
		t.Fatalf("expected InvalidCredential, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, project_id, engine, type, encrypted_data").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "proj-missing", model.EngineGoogle)
	if err == nil {
		t.Fatal("Get() should error when no credential row exists")
	}
	se := workererrors.GetServiceError(err)
	if se == nil || se.Code != workererrors.ErrCodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
