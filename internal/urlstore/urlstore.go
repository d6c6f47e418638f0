// Package urlstore persists UrlEntry rows in bounded batches and maintains
// Project's eventually-consistent cached counters.
package urlstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/internal/model"
	"github.com/sitemapindexerpro/workercore/internal/sitemap"
)

// MaxBatchSize bounds a single upsertBatch call.
const MaxBatchSize = 500

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type upsertRow struct {
	ProjectID  string   `db:"project_id"`
	SitemapID  string   `db:"sitemap_id"`
	Loc        string   `db:"loc"`
	LocHash    string   `db:"loc_hash"`
	LastMod    string   `db:"lastmod"`
	ChangeFreq string   `db:"changefreq"`
	Priority   *float64 `db:"priority"`
}

// UpsertBatch inserts or updates up to MaxBatchSize entries in one
// statement, keyed on (projectId, locHash).
func (s *Store) UpsertBatch(ctx context.Context, projectID, sitemapID string, entries []sitemap.URLEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > MaxBatchSize {
		return workererrors.InvalidInput("entries", "batch exceeds maximum of 500")
	}

	rows := make([]upsertRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, upsertRow{
			ProjectID:  projectID,
			SitemapID:  sitemapID,
			Loc:        e.Loc,
			LocHash:    model.LocHash(e.Loc),
			LastMod:    e.LastMod,
			ChangeFreq: e.ChangeFreq,
			Priority:   e.Priority,
		})
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO url_entries (id, project_id, sitemap_id, loc, loc_hash, lastmod, changefreq, priority, google_status, bing_status, first_seen_at)
		VALUES (gen_random_uuid(), :project_id, :sitemap_id, :loc, :loc_hash, :lastmod, :changefreq, :priority, 'DISCOVERED', 'DISCOVERED', now())
		ON CONFLICT (project_id, loc_hash) DO UPDATE SET
			sitemap_id = EXCLUDED.sitemap_id,
			lastmod = EXCLUDED.lastmod,
			changefreq = EXCLUDED.changefreq,
			priority = EXCLUDED.priority
	`, rows)
	if err != nil {
		return workererrors.Internal("upsert url entries", err)
	}
	return nil
}

// UpdateProjectCounters recomputes Project.cachedCounters by aggregating
// UrlEntry.googleStatus.
func (s *Store) UpdateProjectCounters(ctx context.Context, projectID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return workererrors.Internal("begin counter update tx", err)
	}
	defer tx.Rollback()

	var counters model.CachedCounters
	row := tx.QueryRowxContext(ctx, `
		SELECT
			count(*) AS total,
			count(*) FILTER (WHERE google_status = 'INDEXED') AS indexed,
			count(*) FILTER (WHERE google_status IN ('DISCOVERED', 'QUEUED', 'SUBMITTED')) AS pending,
			count(*) FILTER (WHERE google_status IN ('ERROR_4XX', 'ERROR_5XX', 'CRAWL_ERROR')) AS error
		FROM url_entries
		WHERE project_id = $1 AND removed_at IS NULL
	`, projectID)
	if err := row.Scan(&counters.Total, &counters.Indexed, &counters.Pending, &counters.Error); err != nil {
		return workererrors.Internal("aggregate url counters", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE projects SET cached_total = $1, cached_indexed = $2, cached_pending = $3, cached_error = $4, last_scan_at = $5
		WHERE id = $6
	`, counters.Total, counters.Indexed, counters.Pending, counters.Error, now, projectID); err != nil {
		return workererrors.Internal("persist project counters", err)
	}

	if err := tx.Commit(); err != nil {
		return workererrors.Internal("commit counter update", err)
	}
	return nil
}

// ListByIDs loads UrlEntry rows by id, returning the {id, projectId, loc,
// locHash, googleStatus, bingStatus} projection used by the submitter workers.
func (s *Store) ListByIDs(ctx context.Context, ids []string) ([]model.UrlEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, project_id, loc, loc_hash, google_status, bing_status FROM url_entries WHERE id IN (?)`, ids)
	if err != nil {
		return nil, workererrors.Internal("build list query", err)
	}
	query = s.db.Rebind(query)

	var entries []model.UrlEntry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, workererrors.Internal("list url entries", err)
	}
	return entries, nil
}
