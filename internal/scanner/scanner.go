// Package scanner implements the C6 scanner worker: recursive sitemap-index
// traversal with cycle avoidance, bounded fan-out, and incremental batch
// upsert of discovered URLs.
package scanner

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/infrastructure/logging"
	"github.com/sitemapindexerpro/workercore/infrastructure/metrics"
	"github.com/sitemapindexerpro/workercore/internal/eventbus"
	"github.com/sitemapindexerpro/workercore/internal/jobstore"
	"github.com/sitemapindexerpro/workercore/internal/model"
	"github.com/sitemapindexerpro/workercore/internal/queue"
	"github.com/sitemapindexerpro/workercore/internal/sitemap"
	"github.com/sitemapindexerpro/workercore/internal/urlstore"
)

// MaxDepth bounds sitemap-index recursion.
const MaxDepth = 10

// Fanout bounds concurrent child-sitemap enqueue calls within one
// fanOutChildren call; each child is then fetched by its own scanner job.
const Fanout = 5

// Payload is the scanner queue message shape.
type Payload struct {
	ProjectID       string `json:"projectId"`
	JobID           string `json:"jobId"`
	SitemapURL      string `json:"sitemapUrl,omitempty"`
	ParentSitemapID string `json:"parentSitemapId,omitempty"`
	Depth           int    `json:"depth"`
}

// Worker wires the fetcher, parser, and stores into one handler.
type Worker struct {
	db        *sqlx.DB
	fetcher   *sitemap.Fetcher
	urls      *urlstore.Store
	jobs      *jobstore.Store
	metrics   *metrics.Metrics
	log       *logging.Logger
	bus       *eventbus.Bus
	lookupOrg func(ctx context.Context, projectID string) (string, error)
}

func NewWorker(
	db *sqlx.DB,
	fetcher *sitemap.Fetcher,
	urls *urlstore.Store,
	jobs *jobstore.Store,
	m *metrics.Metrics,
	log *logging.Logger,
	bus *eventbus.Bus,
	lookupOrg func(ctx context.Context, projectID string) (string, error),
) *Worker {
	return &Worker{db: db, fetcher: fetcher, urls: urls, jobs: jobs, metrics: m, log: log, bus: bus, lookupOrg: lookupOrg}
}

// logEvent broadcasts a live LOG event for the job, when a bus is wired in.
func (w *Worker) logEvent(ctx context.Context, projectID, jobID string, level model.LogLevel, message string) {
	if w.bus == nil || w.lookupOrg == nil {
		return
	}
	org, err := w.lookupOrg(ctx, projectID)
	if err != nil {
		return
	}
	w.bus.PublishLog(ctx, org, projectID, level, model.ModuleWorker, message, jobID)
}

// claimVisit atomically marks url as visited for this job run, returning
// true if this call made the claim (first visit) and false if another
// fan-out branch already claimed it. Scoped to job_id rather than the
// standing (project_id, url) sitemap index, since cycle avoidance must
// reset on every new job run instead of persisting across them.
func (w *Worker) claimVisit(ctx context.Context, jobID, url string) (bool, error) {
	res, err := w.db.ExecContext(ctx, `
		INSERT INTO sitemap_visits (job_id, url) VALUES ($1, $2)
		ON CONFLICT (job_id, url) DO NOTHING
	`, jobID, url)
	if err != nil {
		return false, workererrors.Internal("claim sitemap visit", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, workererrors.Internal("claim sitemap visit", err)
	}
	return n > 0, nil
}

// Handle implements queue.Handler for the sitemap-scanner queue.
func (w *Worker) Handle(ctx context.Context, raw json.RawMessage, jc *queue.JobContext) error {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return workererrors.InvalidInput("payload", err.Error())
	}
	ctx = logging.WithJobID(ctx, p.JobID)
	ctx = logging.WithProjectID(ctx, p.ProjectID)
	if p.Depth == 0 {
		ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	}
	return w.run(ctx, p, jc)
}

func (w *Worker) run(ctx context.Context, p Payload, jc *queue.JobContext) error {
	start := time.Now()

	targetURL := p.SitemapURL
	if targetURL == "" {
		var rootURL string
		if err := w.db.GetContext(ctx, &rootURL, `SELECT root_sitemap_url FROM projects WHERE id = $1`, p.ProjectID); err != nil {
			return workererrors.Internal("load project root sitemap", err)
		}
		targetURL = rootURL
	}

	if p.Depth == 0 {
		if err := w.jobs.Start(ctx, p.JobID); err != nil {
			return err
		}
		w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelInfo, "scan started for "+targetURL)
	}

	if jc != nil && jc.WaitWhilePaused(time.Second) {
		abortErr := workererrors.JobAborted()
		if p.Depth == 0 {
			_ = w.jobs.Fail(ctx, p.JobID, abortErr)
		}
		return abortErr
	}

	claimed, err := w.claimVisit(ctx, p.JobID, targetURL)
	if err != nil {
		if p.Depth == 0 {
			_ = w.jobs.Fail(ctx, p.JobID, err)
		}
		return err
	}
	if !claimed {
		return nil
	}

	result, fetchErr := w.fetchAndParse(ctx, targetURL)
	if fetchErr != nil {
		w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelError, "fetch failed for "+targetURL+": "+fetchErr.Error())
		if p.Depth == 0 {
			_ = w.jobs.Fail(ctx, p.JobID, fetchErr)
		}
		return fetchErr
	}

	sitemapID, err := w.upsertSitemap(ctx, p.ProjectID, targetURL, p.ParentSitemapID, result)
	if err != nil {
		if p.Depth == 0 {
			_ = w.jobs.Fail(ctx, p.JobID, err)
		}
		return err
	}

	if len(result.URLs) > 0 {
		if err := w.upsertInBatches(ctx, p.ProjectID, sitemapID, result.URLs, jc); err != nil {
			if p.Depth == 0 {
				_ = w.jobs.Fail(ctx, p.JobID, err)
			}
			return err
		}
	}

	if result.Kind == model.SitemapKindIndex && p.Depth < MaxDepth {
		if err := w.fanOutChildren(ctx, p, sitemapID, result.ChildSitemaps, jc); err != nil {
			if p.Depth == 0 {
				_ = w.jobs.Fail(ctx, p.JobID, err)
			}
			return err
		}
	}

	if err := w.urls.UpdateProjectCounters(ctx, p.ProjectID); err != nil {
		w.log.WithError(err).Warn("update project counters failed")
	}

	if p.Depth == 0 {
		if err := w.jobs.Complete(ctx, p.JobID); err != nil {
			return err
		}
		w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelSuccess, "scan completed")
	}

	if w.metrics != nil {
		w.metrics.RecordSitemapScan(time.Since(start))
	}
	return nil
}

func (w *Worker) fetchAndParse(ctx context.Context, url string) (*sitemap.ParseResult, error) {
	fr, err := w.fetcher.Fetch(ctx, url, "")
	if err != nil {
		w.log.LogSitemapFetch(ctx, url, 0, err)
		return nil, err
	}
	if fr.NotModified {
		return &sitemap.ParseResult{}, nil
	}
	defer fr.Body.Close()

	result, err := sitemap.Parse(fr.Body, url)
	w.log.LogSitemapFetch(ctx, url, len(result.URLs), err)
	return result, err
}

func (w *Worker) upsertSitemap(ctx context.Context, projectID, url, parentID string, result *sitemap.ParseResult) (string, error) {
	locs := make([]string, 0, len(result.URLs)+len(result.ChildSitemaps))
	for _, u := range result.URLs {
		locs = append(locs, u.Loc)
	}
	locs = append(locs, result.ChildSitemaps...)
	sort.Strings(locs)
	contentHash := model.ContentHash(locs)

	var id string
	var parent interface{}
	if parentID != "" {
		parent = parentID
	}
	err := w.db.QueryRowContext(ctx, `
		INSERT INTO sitemaps (id, project_id, url, kind, parent_id, url_count, last_fetched_at, content_hash)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, now(), $6)
		ON CONFLICT (project_id, url) DO UPDATE SET
			kind = EXCLUDED.kind, parent_id = EXCLUDED.parent_id,
			url_count = EXCLUDED.url_count, last_fetched_at = now(), content_hash = EXCLUDED.content_hash
		RETURNING id
	`, projectID, url, result.Kind, parent, len(result.URLs), contentHash).Scan(&id)
	if err != nil {
		return "", workererrors.Internal("upsert sitemap", err)
	}
	return id, nil
}

func (w *Worker) upsertInBatches(ctx context.Context, projectID, sitemapID string, entries []sitemap.URLEntry, jc *queue.JobContext) error {
	total := len(entries)
	processed := 0
	for start := 0; start < total; start += urlstore.MaxBatchSize {
		end := start + urlstore.MaxBatchSize
		if end > total {
			end = total
		}
		if err := w.urls.UpsertBatch(ctx, projectID, sitemapID, entries[start:end]); err != nil {
			return err
		}
		processed = end
		if jc != nil {
			jc.Progress(int(math.Round(float64(processed) / float64(total) * 100)))
		}
	}
	return nil
}

func (w *Worker) fanOutChildren(ctx context.Context, p Payload, sitemapID string, children []string, jc *queue.JobContext) error {
	seen := make(map[string]struct{}, len(children))
	sem := make(chan struct{}, Fanout)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, child := range children {
		if _, dup := seen[child]; dup {
			continue
		}
		seen[child] = struct{}{}

		sem <- struct{}{}
		wg.Add(1)
		go func(childURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			childPayload := Payload{
				ProjectID:       p.ProjectID,
				JobID:           p.JobID,
				SitemapURL:      childURL,
				ParentSitemapID: sitemapID,
				Depth:           p.Depth + 1,
			}
			if _, err := jc.Enqueue(ctx, queue.QueueScanner, childPayload); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(child)
	}

	wg.Wait()
	return firstErr
}
