// Package credstore persists and decrypts per-project engine credentials
// (Google service-account JSON, IndexNow keys) through the credential
// vault's envelope primitives.
package credstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/sitemapindexerpro/workercore/infrastructure/crypto"
	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/internal/model"
)

// Store persists Credential rows and performs encrypt/decrypt at the
// boundary so plaintext secrets never leave this package.
type Store struct {
	db               *sql.DB
	masterPassphrase string
}

// New constructs a Store. masterPassphrase must be ≥32 characters; callers
// are expected to have already validated this via internal/config.
func New(db *sql.DB, masterPassphrase string) *Store {
	return &Store{db: db, masterPassphrase: masterPassphrase}
}

// Put encrypts plaintext and upserts the credential for (projectID, engine).
func (s *Store) Put(ctx context.Context, projectID string, engine model.SubmissionEngine, credType string, plaintext []byte) error {
	env, err := crypto.Encrypt(s.masterPassphrase, plaintext)
	if err != nil {
		return workererrors.Internal("encrypt credential", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, project_id, engine, type, encrypted_data, iv, auth_tag, salt, is_valid)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, true)
		ON CONFLICT (project_id, engine) DO UPDATE SET
			type = EXCLUDED.type,
			encrypted_data = EXCLUDED.encrypted_data,
			iv = EXCLUDED.iv,
			auth_tag = EXCLUDED.auth_tag,
			salt = EXCLUDED.salt,
			is_valid = true
	`, projectID, engine, credType, env.EncryptedData, env.IV, env.AuthTag, env.Salt)
	if err != nil {
		return workererrors.Internal("persist credential", err)
	}
	return nil
}

// Get decrypts and returns the plaintext credential for (projectID, engine).
// The plaintext is returned for a single caller's in-memory use
// and must not be cached or logged by the caller.
func (s *Store) Get(ctx context.Context, projectID string, engine model.SubmissionEngine) ([]byte, error) {
	var cred model.Credential
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, engine, type, encrypted_data, iv, auth_tag, salt, is_valid
		FROM credentials WHERE project_id = $1 AND engine = $2
	`, projectID, engine)

	if err := row.Scan(&cred.ID, &cred.ProjectID, &cred.Engine, &cred.Type,
		&cred.EncryptedData, &cred.IV, &cred.AuthTag, &cred.Salt, &cred.IsValid); err != nil {
		if err == sql.ErrNoRows {
			return nil, workererrors.NotFound("credential", projectID+"/"+string(engine))
		}
		return nil, workererrors.Internal("load credential", err)
	}
	if !cred.IsValid {
		return nil, workererrors.InvalidCredential(nil)
	}

	plaintext, err := crypto.Decrypt(s.masterPassphrase, &crypto.Envelope{
		EncryptedData: cred.EncryptedData,
		IV:            cred.IV,
		AuthTag:       cred.AuthTag,
		Salt:          cred.Salt,
	})
	if err != nil {
		_, _ = s.db.ExecContext(ctx, `UPDATE credentials SET is_valid = false WHERE id = $1`, cred.ID)
		return nil, workererrors.InvalidCredential(err)
	}

	now := time.Now().UTC()
	_, _ = s.db.ExecContext(ctx, `UPDATE credentials SET last_used_at = $1 WHERE id = $2`, now, cred.ID)
	return plaintext, nil
}

// GenerateIndexNowKey creates and stores a fresh IndexNow key for a project.
func (s *Store) GenerateIndexNowKey(ctx context.Context, projectID string) (string, error) {
	key, err := crypto.GenerateIndexNowKey()
	if err != nil {
		return "", workererrors.Internal("generate indexnow key", err)
	}
	if err := s.Put(ctx, projectID, model.EngineIndexNow, "indexnow_key", []byte(key)); err != nil {
		return "", err
	}
	return key, nil
}
