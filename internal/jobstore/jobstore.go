// Package jobstore persists Job rows and enforces the PENDING -> PROCESSING
// -> (COMPLETED | FAILED | CANCELLED) state machine plus the monotonic
// progress invariant.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/internal/model"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new PENDING job.
func (s *Store) Create(ctx context.Context, job *model.Job) error {
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return workererrors.Internal("marshal job metadata", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, project_id, type, status, progress, total_items, processed_items, metadata, scheduled_at)
		VALUES ($1, $2, $3, $4, 0, $5, 0, $6, $7)
	`, job.ID, job.ProjectID, job.Type, model.JobPending, job.TotalItems, meta, job.ScheduledAt)
	if err != nil {
		return workererrors.Internal("create job", err)
	}
	return nil
}

// Start transitions a job PENDING -> PROCESSING.
func (s *Store) Start(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4
	`, model.JobProcessing, now, jobID, model.JobPending)
	if err != nil {
		return workererrors.Internal("start job", err)
	}
	return checkAffected(res, jobID)
}

// UpdateProgress advances progress and processed item count. Progress never
// moves backward except implicitly via a CANCELLED transition.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress, processedItems int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = GREATEST(progress, $1), processed_items = $2
		WHERE id = $3 AND status = $4
	`, progress, processedItems, jobID, model.JobProcessing)
	if err != nil {
		return workererrors.Internal("update job progress", err)
	}
	return nil
}

// Complete transitions a job PROCESSING -> COMPLETED.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, progress = 100, completed_at = $2
		WHERE id = $3 AND status = $4
	`, model.JobCompleted, now, jobID, model.JobProcessing)
	if err != nil {
		return workererrors.Internal("complete job", err)
	}
	return checkAffected(res, jobID)
}

// Fail transitions a job PROCESSING -> FAILED with an error message.
func (s *Store) Fail(ctx context.Context, jobID string, cause error) error {
	now := time.Now().UTC()
	msg := cause.Error()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, completed_at = $2, error_message = $3
		WHERE id = $4 AND status = $5
	`, model.JobFailed, now, msg, jobID, model.JobProcessing)
	if err != nil {
		return workererrors.Internal("fail job", err)
	}
	return checkAffected(res, jobID)
}

// Cancel transitions a job to CANCELLED from any non-terminal state.
func (s *Store) Cancel(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, completed_at = $2
		WHERE id = $3 AND status IN ($4, $5)
	`, model.JobCancelled, now, jobID, model.JobPending, model.JobProcessing)
	if err != nil {
		return workererrors.Internal("cancel job", err)
	}
	return nil
}

// Get loads a job by ID.
func (s *Store) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	var meta []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, type, status, progress, total_items, processed_items,
		       metadata, scheduled_at, started_at, completed_at, error_message
		FROM jobs WHERE id = $1
	`, jobID).Scan(&job.ID, &job.ProjectID, &job.Type, &job.Status, &job.Progress,
		&job.TotalItems, &job.ProcessedItems, &meta, &job.ScheduledAt,
		&job.StartedAt, &job.CompletedAt, &job.ErrorMessage)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, workererrors.NotFound("job", jobID)
		}
		return nil, workererrors.Internal("load job", err)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &job.Metadata)
	}
	return &job, nil
}

func checkAffected(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return workererrors.Internal("check rows affected", err)
	}
	if n == 0 {
		return workererrors.Conflict("job " + jobID + " is not in the expected state for this transition")
	}
	return nil
}
