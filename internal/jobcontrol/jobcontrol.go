// Package jobcontrol tracks per-job pause/cancel state and throttles
// progress reporting, generalizing the core's stopCh/doneCh worker
// lifecycle convention to a per-job-ID granularity.
package jobcontrol

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Controller tracks live jobs so an operator action (pause, cancel) can
// reach a specific in-flight job without tearing down the worker pool.
type Controller struct {
	mu     sync.Mutex
	jobs   map[string]*jobHandle
}

type jobHandle struct {
	paused atomic.Bool
	cancel context.CancelFunc
}

func NewController() *Controller {
	return &Controller{jobs: make(map[string]*jobHandle)}
}

// Register derives a cancellable context for jobID and tracks it for
// Pause/Cancel calls. Callers must call Unregister when the job ends.
func (c *Controller) Register(ctx context.Context, jobID string) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.jobs[jobID] = &jobHandle{cancel: cancel}
	c.mu.Unlock()
	return ctx
}

// Unregister drops bookkeeping for a completed job.
func (c *Controller) Unregister(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, jobID)
}

// Pause sets the pause flag a running handler should poll via IsPaused.
func (c *Controller) Pause(jobID string) bool {
	c.mu.Lock()
	h, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h.paused.Store(true)
	return true
}

// Resume clears the pause flag.
func (c *Controller) Resume(jobID string) bool {
	c.mu.Lock()
	h, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h.paused.Store(false)
	return true
}

// IsPaused reports whether jobID is currently paused.
func (c *Controller) IsPaused(jobID string) bool {
	c.mu.Lock()
	h, ok := c.jobs[jobID]
	c.mu.Unlock()
	return ok && h.paused.Load()
}

// Cancel cancels the context derived for jobID, signaling its handler to
// abort (infrastructure/errors.JobAborted).
func (c *Controller) Cancel(jobID string) bool {
	c.mu.Lock()
	h, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// ProgressReporter clamps percentages to [0,100] and throttles callbacks
// to at most one per interval, avoiding a flood of job-progress writes
// during tight per-URL loops.
type ProgressReporter struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
	report   func(percent int)
}

func NewProgressReporter(interval time.Duration, report func(percent int)) *ProgressReporter {
	return &ProgressReporter{interval: interval, report: report}
}

// Report clamps percent and forwards it if the throttle interval elapsed,
// always forwarding a final 100% regardless of throttling.
func (p *ProgressReporter) Report(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if percent < 100 && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.report(percent)
}
