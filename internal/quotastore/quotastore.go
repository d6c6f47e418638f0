// Package quotastore tracks daily per-(project,engine) submission quotas
// with atomic increments so concurrent submitters never lose an update to
// the used counter. Increment does not check the configured limit.
package quotastore

import (
	"context"
	"database/sql"
	"time"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/internal/model"
)

// Store persists QuotaUsage rows, one per (project, engine, UTC day).
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Remaining returns limit-used for (projectID, engine, today), creating the
// day's row with the given default limit on first use.
func (s *Store) Remaining(ctx context.Context, projectID string, engine model.SubmissionEngine, defaultLimit int) (int, error) {
	day := today()
	var used, limit int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_usage (project_id, engine, date, used, "limit")
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (project_id, engine, date) DO UPDATE SET engine = EXCLUDED.engine
		RETURNING used, "limit"
	`, projectID, engine, day, defaultLimit).Scan(&used, &limit)
	if err != nil {
		return 0, workererrors.Internal("read quota usage", err)
	}
	return limit - used, nil
}

// Increment atomically adds n to the used counter for (projectID, engine,
// today) and returns the new used total. Uses a single UPDATE ... RETURNING
// statement so concurrent callers serialize on the row rather than racing
// a read-modify-write.
func (s *Store) Increment(ctx context.Context, projectID string, engine model.SubmissionEngine, n int) (int, error) {
	day := today()
	var used int
	err := s.db.QueryRowContext(ctx, `
		UPDATE quota_usage SET used = used + $1
		WHERE project_id = $2 AND engine = $3 AND date = $4
		RETURNING used
	`, n, projectID, engine, day).Scan(&used)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, workererrors.Internal("increment quota before first read", nil)
		}
		return 0, workererrors.Internal("increment quota usage", err)
	}
	return used, nil
}
