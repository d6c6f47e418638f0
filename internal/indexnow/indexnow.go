// Package indexnow implements the C8 IndexNow submitter: parallel fan-out
// to multiple search-engine endpoints with adaptive batch splitting on
// 429/422.
package indexnow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

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

// Endpoints is the fixed fan-out set, capped at 4 concurrent calls via
// errgroup.SetLimit.
var Endpoints = []string{
	"https://www.bing.com/indexnow",
	"https://yandex.com/indexnow",
	"https://search.seznam.cz/indexnow",
	"https://searchadvisor.naver.com/indexnow",
	"https://api.indexnow.org/indexnow",
}

const splitThreshold = 10

// Payload is the indexnow-submitter queue message shape.
type Payload struct {
	ProjectID string   `json:"projectId"`
	JobID     string   `json:"jobId"`
	URLIDs    []string `json:"urlIds"`
}

type submitBody struct {
	Host        string   `json:"host"`
	Key         string   `json:"key"`
	KeyLocation string   `json:"keyLocation"`
	URLList     []string `json:"urlList"`
}

type Worker struct {
	httpClient       *http.Client
	creds            *credstore.Store
	quota            *quotastore.Store
	urls             *urlstore.Store
	jobs             *jobstore.Store
	metrics          *metrics.Metrics
	log              *logging.Logger
	lookupDomain     func(ctx context.Context, projectID string) (string, error)
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
	lookupDomain func(ctx context.Context, projectID string) (string, error),
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
		lookupDomain:     lookupDomain,
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

	host, err := w.lookupDomain(ctx, p.ProjectID)
	if err != nil {
		_ = w.jobs.Fail(ctx, p.JobID, err)
		return err
	}

	keyBytes, err := w.creds.Get(ctx, p.ProjectID, model.EngineIndexNow)
	if err != nil {
		_ = w.jobs.Fail(ctx, p.JobID, err)
		return err
	}
	key := string(keyBytes)

	entries, err := w.urls.ListByIDs(ctx, p.URLIDs)
	if err != nil {
		_ = w.jobs.Fail(ctx, p.JobID, err)
		return err
	}

	locs := make([]string, 0, len(entries))
	for _, e := range entries {
		locs = append(locs, e.Loc)
	}

	w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelInfo, "indexnow submission started for "+host)

	accepted, err := w.submitBatch(ctx, host, key, locs)
	if err != nil {
		w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelError, "indexnow submission failed: "+err.Error())
		_ = w.jobs.Fail(ctx, p.JobID, err)
		return err
	}
	w.log.WithContext(ctx).WithField("host", host).WithField("accepted", accepted).Info("indexnow batch submitted")

	status := model.SubmissionFailed
	if accepted {
		status = model.SubmissionSucceeded
	}
	for i, e := range entries {
		if jc != nil && jc.WaitWhilePaused(time.Second) {
			abortErr := workererrors.JobAborted()
			_ = w.jobs.Fail(ctx, p.JobID, abortErr)
			return abortErr
		}

		sub := &model.Submission{
			URLID:       e.ID,
			ProjectID:   p.ProjectID,
			Engine:      model.EngineIndexNow,
			Action:      model.ActionURLUpdated,
			Status:      status,
			Attempts:    1,
			MaxAttempts: 3,
			ScheduledAt: time.Now().UTC(),
		}
		if w.recordSubmission != nil {
			_ = w.recordSubmission(ctx, sub)
		}
		if accepted && w.markURLStatus != nil {
			_ = w.markURLStatus(ctx, e.ID, "SUBMITTED")
		}
		if w.metrics != nil {
			outcome := "success"
			if !accepted {
				outcome = "failure"
			}
			w.metrics.RecordIndexNowSubmission(outcome)
		}
		if jc != nil {
			jc.Progress(int(float64(i+1) / float64(len(entries)) * 100))
		}
	}

	if accepted {
		if _, err := w.quota.Increment(ctx, p.ProjectID, model.EngineIndexNow, len(entries)); err != nil {
			w.log.WithError(err).Warn("increment indexnow quota usage failed")
		}
	}

	w.logEvent(ctx, p.ProjectID, p.JobID, model.LevelSuccess, "indexnow submission completed")
	return w.jobs.Complete(ctx, p.JobID)
}

// submitBatch fans out to all endpoints in parallel, adaptively splitting
// on 429/422. Returns true if at least one engine accepted.
func (w *Worker) submitBatch(ctx context.Context, host, key string, urlList []string) (bool, error) {
	if len(urlList) == 0 {
		return true, nil
	}

	body := submitBody{
		Host:        host,
		Key:         key,
		KeyLocation: "https://" + host + "/" + key + ".txt",
		URLList:     urlList,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	results := make([]bool, len(Endpoints))
	splits := make([]bool, len(Endpoints))

	for i, endpoint := range Endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			accepted, needsSplit, err := w.submitToEndpoint(gctx, endpoint, body)
			if err != nil {
				w.log.WithError(err).WithField("endpoint", endpoint).Warn("indexnow submission failed")
			}
			results[i] = accepted
			splits[i] = needsSplit
			return nil
		})
	}
	_ = g.Wait()

	anyAccepted := false
	anySplit := false
	for i := range Endpoints {
		if results[i] {
			anyAccepted = true
		}
		if splits[i] {
			anySplit = true
		}
	}

	if anySplit && len(urlList) > splitThreshold {
		mid := len(urlList) / 2
		time.Sleep(time.Second)
		first, err1 := w.submitBatch(ctx, host, key, urlList[:mid])
		second, err2 := w.submitBatch(ctx, host, key, urlList[mid:])
		if err1 != nil {
			return false, err1
		}
		if err2 != nil {
			return false, err2
		}
		return first || second, nil
	}

	return anyAccepted, nil
}

// submitToEndpoint performs one POST with exponential retry, reporting
// whether a 429/422 response calls for adaptive splitting.
func (w *Worker) submitToEndpoint(ctx context.Context, endpoint string, body submitBody) (accepted bool, needsSplit bool, err error) {
	payload, _ := json.Marshal(body)
	delay := time.Second

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return false, false, reqErr
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")

		start := time.Now()
		resp, doErr := w.httpClient.Do(req)
		if w.metrics != nil {
			w.metrics.RecordAPILatency("indexnow", time.Since(start))
		}
		if doErr != nil {
			err = doErr
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return true, false, nil
		case resp.StatusCode == 429 || resp.StatusCode == 422:
			if len(body.URLList) > splitThreshold {
				return false, true, nil
			}
			continue
		case resp.StatusCode >= 500:
			continue
		default:
			return false, false, nil
		}
	}
	return false, false, err
}
