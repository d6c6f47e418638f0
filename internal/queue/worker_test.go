package queue

import (
	"context"
	"testing"
	"time"

	"github.com/sitemapindexerpro/workercore/internal/jobcontrol"
)

func TestJobContextWaitWhilePausedBlocksUntilResumed(t *testing.T) {
	control := jobcontrol.NewController()
	ctx := control.Register(context.Background(), "job-1")
	jc := &JobContext{Context: ctx, jobID: "job-1", control: control}

	control.Pause("job-1")

	done := make(chan bool, 1)
	go func() { done <- jc.WaitWhilePaused(10 * time.Millisecond) }()

	select {
	case <-done:
		t.Fatal("WaitWhilePaused returned before the job was resumed")
	case <-time.After(30 * time.Millisecond):
	}

	control.Resume("job-1")

	select {
	case aborted := <-done:
		if aborted {
			t.Error("WaitWhilePaused reported aborted after a plain resume")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitWhilePaused never returned after resume")
	}
}

func TestJobContextWaitWhilePausedReportsAbortOnCancel(t *testing.T) {
	control := jobcontrol.NewController()
	ctx := control.Register(context.Background(), "job-2")
	jc := &JobContext{Context: ctx, jobID: "job-2", control: control}

	control.Pause("job-2")
	control.Cancel("job-2")

	if !jc.WaitWhilePaused(10 * time.Millisecond) {
		t.Error("WaitWhilePaused should report abort once the job context is cancelled")
	}
}

func TestJobContextPausedReflectsController(t *testing.T) {
	control := jobcontrol.NewController()
	control.Register(context.Background(), "job-3")
	jc := &JobContext{jobID: "job-3", control: control}

	if jc.Paused() {
		t.Error("Paused() = true before any Pause() call")
	}
	control.Pause("job-3")
	if !jc.Paused() {
		t.Error("Paused() = false after Pause()")
	}
}
