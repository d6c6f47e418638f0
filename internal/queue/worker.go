package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/infrastructure/logging"
	"github.com/sitemapindexerpro/workercore/internal/eventbus"
	"github.com/sitemapindexerpro/workercore/internal/jobcontrol"
	"github.com/sitemapindexerpro/workercore/internal/jobstore"
)

// jobEnvelope extracts the two fields every queue payload carries (scanner,
// google-submitter, indexnow), letting the generic worker loop track job
// lifecycle without depending on each handler's concrete payload type.
type jobEnvelope struct {
	ProjectID string `json:"projectId"`
	JobID     string `json:"jobId"`
}

// JobContext is passed to a Handler alongside the decoded payload. It lets
// the handler report progress, enqueue child jobs on the same broker, and
// poll for an operator-requested pause/cancel, mirroring the worker
// lifecycle pattern used throughout the core's long-running loops.
type JobContext struct {
	Context context.Context
	broker  *Broker
	msg     *Message
	jobID   string
	control *jobcontrol.Controller
	onProgress func(percent int)
}

// Progress reports percent completion for the job carrying msg. Callers
// clamp to [0, 100]; jobstore.UpdateProgress enforces monotonicity.
func (jc *JobContext) Progress(percent int) {
	if jc.onProgress != nil {
		jc.onProgress(percent)
	}
}

// Paused reports whether an operator has paused this job. Handlers poll
// this between units of work rather than mid-unit.
func (jc *JobContext) Paused() bool {
	return jc.control != nil && jc.control.IsPaused(jc.jobID)
}

// WaitWhilePaused blocks while the job is paused, polling at interval, and
// reports whether the job was aborted (cancelled) while waiting or is
// already aborted. Handlers call this between units of work and return
// infrastructure/errors.JobAborted() when it reports true.
func (jc *JobContext) WaitWhilePaused(interval time.Duration) bool {
	for jc.Paused() {
		select {
		case <-jc.Context.Done():
			return true
		case <-time.After(interval):
		}
	}
	return jc.Context.Err() != nil
}

// Enqueue places a child job of the same or a different queue.
func (jc *JobContext) Enqueue(ctx context.Context, queue string, payload interface{}) (string, error) {
	return jc.broker.Enqueue(ctx, queue, payload)
}

// Handler processes one dequeued message. A non-nil error with
// Retryable()==true causes redelivery with backoff; otherwise the message
// is dropped after the handler has recorded its own terminal failure.
type Handler func(ctx context.Context, payload json.RawMessage, jc *JobContext) error

// WorkerGroup runs N handler goroutines against a single queue, following
// the stopCh/doneCh lifecycle convention used by the core's other
// long-running loops.
type WorkerGroup struct {
	broker      *Broker
	queue       string
	handler     Handler
	concurrency int

	control   *jobcontrol.Controller
	jobs      *jobstore.Store
	bus       *eventbus.Bus
	lookupOrg func(ctx context.Context, projectID string) (string, error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	log *logging.Logger
}

// NewWorkerGroup wires a handler to a queue. control, jobs, bus, and
// lookupOrg are optional (nil disables pause/cancel, progress persistence,
// and live job-update events respectively) so tests can construct a bare
// WorkerGroup without a database or Redis connection.
func NewWorkerGroup(
	broker *Broker,
	queue string,
	concurrency int,
	handler Handler,
	log *logging.Logger,
	control *jobcontrol.Controller,
	jobs *jobstore.Store,
	bus *eventbus.Bus,
	lookupOrg func(ctx context.Context, projectID string) (string, error),
) *WorkerGroup {
	return &WorkerGroup{
		broker:      broker,
		queue:       queue,
		handler:     handler,
		concurrency: concurrency,
		control:     control,
		jobs:        jobs,
		bus:         bus,
		lookupOrg:   lookupOrg,
		log:         log,
	}
}

// Start launches the worker goroutines. It is a no-op if already running.
func (wg *WorkerGroup) Start(ctx context.Context) {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	if wg.running {
		return
	}
	wg.running = true
	wg.stopCh = make(chan struct{})
	wg.doneCh = make(chan struct{}, wg.concurrency)

	for i := 0; i < wg.concurrency; i++ {
		go wg.loop(ctx)
	}
}

// Stop signals all worker goroutines to exit and blocks until they do.
func (wg *WorkerGroup) Stop() {
	wg.mu.Lock()
	if !wg.running {
		wg.mu.Unlock()
		return
	}
	wg.running = false
	close(wg.stopCh)
	n := wg.concurrency
	wg.mu.Unlock()

	for i := 0; i < n; i++ {
		<-wg.doneCh
	}
}

func (wg *WorkerGroup) loop(ctx context.Context) {
	defer func() { wg.doneCh <- struct{}{} }()

	for {
		select {
		case <-wg.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := wg.broker.Dequeue(ctx, wg.queue, 5*time.Second)
		if err != nil {
			wg.log.WithError(err).Warn("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		wg.process(ctx, msg)
	}
}

func (wg *WorkerGroup) process(ctx context.Context, msg *Message) {
	var env jobEnvelope
	_ = json.Unmarshal(msg.Payload, &env)

	jobCtx := ctx
	if wg.control != nil && env.JobID != "" {
		jobCtx = wg.control.Register(ctx, env.JobID)
		defer wg.control.Unregister(env.JobID)
	}

	jc := &JobContext{Context: jobCtx, broker: wg.broker, msg: msg, jobID: env.JobID, control: wg.control}
	if wg.jobs != nil && env.JobID != "" {
		total := 0
		if job, err := wg.jobs.Get(jobCtx, env.JobID); err == nil {
			total = job.TotalItems
		}
		reporter := jobcontrol.NewProgressReporter(2*time.Second, func(percent int) {
			processed := percent
			if total > 0 {
				processed = percent * total / 100
			}
			if err := wg.jobs.UpdateProgress(jobCtx, env.JobID, percent, processed); err != nil {
				wg.log.WithError(err).Warn("update job progress failed")
			}
			wg.publishJobUpdate(jobCtx, env, percent, processed, total)
		})
		jc.onProgress = reporter.Report
	}

	err := wg.handler(jobCtx, msg.Payload, jc)

	if jobCtx.Err() != nil && ctx.Err() == nil {
		// jobCtx was cancelled via Controller.Cancel specifically (the
		// parent ctx is still live), so this is an operator abort rather
		// than a process shutdown: persist CANCELLED and drop the message.
		if wg.jobs != nil && env.JobID != "" {
			if cancelErr := wg.jobs.Cancel(context.Background(), env.JobID); cancelErr != nil {
				wg.log.WithError(cancelErr).Warn("cancel job failed")
			}
		}
		if ackErr := wg.broker.Ack(ctx, wg.queue, msg); ackErr != nil {
			wg.log.WithError(ackErr).Warn("ack cancelled job failed")
		}
		return
	}

	if err == nil {
		if ackErr := wg.broker.Ack(ctx, wg.queue, msg); ackErr != nil {
			wg.log.WithError(ackErr).Warn("ack failed")
		}
		return
	}

	retryable := workererrors.IsRetryable(err)
	wg.log.WithError(err).WithField("retryable", retryable).Warn("handler failed")
	if nackErr := wg.broker.Nack(ctx, msg, retryable); nackErr != nil {
		wg.log.WithError(nackErr).Error("nack failed")
	}

	logrus.WithField("queue", wg.queue).WithField("message_id", msg.ID).Debug("message handling finished")
}

// publishJobUpdate broadcasts a JOB_UPDATE event alongside every persisted
// progress change, resolving the owning organization so the live event bus
// can route it to the right subscriber hub.
func (wg *WorkerGroup) publishJobUpdate(ctx context.Context, env jobEnvelope, progress, processed, total int) {
	if wg.bus == nil || wg.lookupOrg == nil {
		return
	}
	org, err := wg.lookupOrg(ctx, env.ProjectID)
	if err != nil {
		wg.log.WithError(err).Warn("look up organization for job update failed")
		return
	}
	wg.bus.Publish(ctx, eventbus.Event{
		Kind:      eventbus.EventJobUpdate,
		Org:       org,
		ProjectID: env.ProjectID,
		Job: &eventbus.JobUpdate{
			ID:             env.JobID,
			Progress:       progress,
			ProcessedItems: processed,
			TotalItems:     total,
		},
	})
}
