// Package googlesub implements the C7 Google Indexing API submitter:
// service-account JWT-bearer auth, daily quota enforcement, and sequential
// per-URL submission with status-code-driven retry/fatal classification.
package googlesub

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/infrastructure/logging"
	"github.com/sitemapindexerpro/workercore/infrastructure/metrics"
	"github.com/sitemapindexerpro/workercore/internal/credstore"
	"github.com/sitemapindexerpro/workercore/internal/eventbus"
	"github.com/sitemapindexerpro/workercore/internal/jobstore"
	"github.com/sitemapindexerpro/workercore/internal/model"
	"github.com/sitemapindexerpro/workercore/internal/quotastore"
	"github.com/sitemapindexerpro/workercore/internal/queue"
	"github.com/sitemapindexerpro/workercore/internal/urlstore"
)

const publishEndpoint = "https://indexing.googleapis.com/v3/urlNotifications:publish"

// Payload is the google-submitter queue message shape.
type Payload struct {
	ProjectID string                 `json:"projectId"`
	JobID     string                 `json:"jobId"`
	URLIDs    []string               `json:"urlIds"`
	Action    model.SubmissionAction `json:"action"`
}

// Worker submits URLs to the Google Indexing API one project-credential
// pair at a time (concurrency=1, enforced by the queue broker's per-queue
// worker count).
type Worker struct {
	httpClient *http.Client
	creds      *credstore.Store
	quota      *quotastore.Store
	urls       *urlstore.Store
	jobs       *jobstore.Store
	metrics    *metrics.Metrics
	log        *logging.Logger
	dailyQuota int
	recordSubmission func(ctx context.Context, s *model.Submission) error
	markURLStatus    func(ctx context.Context, urlID, status string) error
	bus              *eventbus.Bus
	lookupOrg        func(ctx context.Context, projectID string) (string, error)
}

func NewWorker(
	creds *credstore.Store,
	quota *quotastore.Store,
	urls *urlstore.Store,
	jobs *jobstore.Store,
	m *metrics.Metrics,
	log *logging.Logger,
	dailyQuota int,
	recordSubmission func(ctx context.Context, s *model.Submission) error,
	markURLStatus func(ctx context.Context, urlID, status string) error,
	bus *eventbus.Bus,
	lookupOrg func(ctx context.Context, projectID string) (string, error),
) *Worker {
	return &Worker{
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		creds:            creds,
		quota:            quota,
		urls:             urls,
		jobs:             jobs,
		metrics:          m,
		log:              log,
		dailyQuota:       dailyQuota,
		recordSubmission: recordSubmission,
		markURLStatus:    markURLStatus,
		bus:              bus,
		lookupOrg:        lookupOrg,
	}
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

func (w *Worker) Handle(ctx context.Context, raw json.RawMessage, jc *queue.JobContext) error {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return workererrors.InvalidInput("payload", err.Error())
	}
	ctx = logging.WithJobID(ctx, p.JobID)
	ctx = logging.WithProjectID(ctx, p.ProjectID)
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	return w.run(ctx, p, jc)
}

func (w *Worker) run(ctx context.Context, p Payload, jc *queue.JobContext) error {
	if err := w.jobs.Start(ctx, p.JobID); err != nil {
		return err
	}

	saJSON, err := w.creds.Get(ctx, p.ProjectID, model.EngineGoogle)
	if err != nil {
		_ = w.jobs.Fail(ctx, p.JobID, err)
		return err
	}

	token, err := fetchBearerToken(ctx, saJSON)
	if err != nil {
		_ = w.jobs.Fail(ctx, p.JobID, err)
		return err
	}

	w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelInfo, "google submission started")

	remaining, err := w.quota.Remaining(ctx, p.ProjectID, model.EngineGoogle, w.dailyQuota)
	if err != nil {
		_ = w.jobs.Fail(ctx, p.JobID, err)
		return err
	}
	if remaining <= 0 {
		quotaErr := workererrors.QuotaExhausted(remaining)
		w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelError, quotaErr.Error())
		_ = w.jobs.Fail(ctx, p.JobID, quotaErr)
		return quotaErr
	}

	urlIDs := p.URLIDs
	if len(urlIDs) > remaining {
		urlIDs = urlIDs[:remaining]
	}

	entries, err := w.urls.ListByIDs(ctx, urlIDs)
	if err != nil {
		_ = w.jobs.Fail(ctx, p.JobID, err)
		return err
	}

	successes := 0
	total := len(entries)
	for i, entry := range entries {
		if jc != nil && jc.WaitWhilePaused(time.Second) {
			abortErr := workererrors.JobAborted()
			if successes > 0 {
				_, _ = w.quota.Increment(ctx, p.ProjectID, model.EngineGoogle, successes)
			}
			_ = w.jobs.Fail(ctx, p.JobID, abortErr)
			return abortErr
		}

		start := time.Now()
		status, code, subErr := w.submitOne(ctx, token, entry.Loc, p.Action)
		if w.metrics != nil {
			w.metrics.RecordAPILatency("google", time.Since(start))
		}
		w.log.LogSubmission(ctx, "google", entry.Loc, code, subErr)

		sub := &model.Submission{
			URLID:       entry.ID,
			ProjectID:   p.ProjectID,
			Engine:      model.EngineGoogle,
			Action:      p.Action,
			Status:      status,
			Attempts:    1,
			MaxAttempts: 3,
			ScheduledAt: time.Now().UTC(),
		}
		if code != 0 {
			sub.ResponseCode = &code
		}
		if subErr != nil {
			msg := subErr.Error()
			sub.ErrorMessage = &msg
		}
		if w.recordSubmission != nil {
			_ = w.recordSubmission(ctx, sub)
		}

		if status == model.SubmissionSucceeded {
			successes++
			if w.markURLStatus != nil {
				_ = w.markURLStatus(ctx, entry.ID, "SUBMITTED")
			}
			if w.metrics != nil {
				w.metrics.RecordGoogleSubmission("success")
			}
		} else if w.metrics != nil {
			w.metrics.RecordGoogleSubmission("failure")
		}

		if jc != nil {
			jc.Progress(int(math.Round(float64(i+1) / float64(total) * 100)))
		}

		if we := workererrors.GetServiceError(subErr); we != nil && we.Kind == workererrors.KindFatalPerJob {
			if successes > 0 {
				_, _ = w.quota.Increment(ctx, p.ProjectID, model.EngineGoogle, successes)
			}
			_ = w.jobs.Fail(ctx, p.JobID, subErr)
			return subErr
		}

		time.Sleep(time.Second)
	}

	if successes > 0 {
		if _, err := w.quota.Increment(ctx, p.ProjectID, model.EngineGoogle, successes); err != nil {
			w.log.WithError(err).Warn("increment google quota usage failed")
		}
	}

	w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelSuccess, "google submission completed")
	return w.jobs.Complete(ctx, p.JobID)
}

// submitOne performs one POST with the per-URL retry/classification rules
// rules below.
func (w *Worker) submitOne(ctx context.Context, token, loc string, action model.SubmissionAction) (model.SubmissionStatus, int, error) {
	delays := []time.Duration{2 * time.Second, 3 * time.Second, 4500 * time.Millisecond}

	for attempt := 0; ; attempt++ {
		code, body, err := w.post(ctx, token, loc, action)
		if err != nil {
			if attempt >= 2 {
				return model.SubmissionFailed, code, workererrors.Transient("google submission network error", err)
			}
			time.Sleep(delays[attempt%len(delays)])
			continue
		}

		switch {
		case code >= 200 && code < 300:
			return model.SubmissionSucceeded, code, nil
		case code == 403 && mentionsPermission(body):
			return model.SubmissionFailed, code, workererrors.PermissionDenied("google indexing API denied: " + body)
		case code == 429 && strings.Contains(strings.ToLower(body), "quota"):
			return model.SubmissionFailed, code, workererrors.QuotaExceeded("google indexing API quota exceeded: " + body)
		case code == 429:
			if attempt >= len(delays)-1 {
				return model.SubmissionFailed, code, workererrors.RateLimited(body)
			}
			time.Sleep(delays[attempt])
			continue
		case code >= 500:
			if attempt >= 2 {
				return model.SubmissionFailed, code, workererrors.Transient("google indexing API server error", errStatus(code))
			}
			time.Sleep(delays[attempt%len(delays)])
			continue
		case code >= 400:
			return model.SubmissionFailed, code, workererrors.PerURLError(body, nil)
		default:
			return model.SubmissionFailed, code, workererrors.PerURLError(body, nil)
		}
	}
}

func (w *Worker) post(ctx context.Context, token, loc string, action model.SubmissionAction) (int, string, error) {
	body, _ := json.Marshal(map[string]string{"url": loc, "type": string(action)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, publishEndpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.String(), nil
}

func mentionsPermission(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "permission") || strings.Contains(lower, "ownership")
}

type errStatus int

func (e errStatus) Error() string { return http.StatusText(int(e)) }
