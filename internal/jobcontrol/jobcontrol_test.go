package jobcontrol

import (
	"context"
	"testing"
	"time"
)

func TestRegisterAndCancel(t *testing.T) {
	c := NewController()
	ctx := c.Register(context.Background(), "job-1")

	if c.Cancel("job-1") != true {
		t.Fatal("Cancel on registered job should return true")
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context derived by Register should be cancelled after Cancel")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	c := NewController()
	if c.Cancel("missing") {
		t.Fatal("Cancel on an unregistered job should return false")
	}
}

func TestPauseResumeIsPaused(t *testing.T) {
	c := NewController()
	c.Register(context.Background(), "job-2")

	if c.IsPaused("job-2") {
		t.Fatal("job should not start paused")
	}
	if !c.Pause("job-2") {
		t.Fatal("Pause on registered job should return true")
	}
	if !c.IsPaused("job-2") {
		t.Fatal("IsPaused should report true after Pause")
	}
	if !c.Resume("job-2") {
		t.Fatal("Resume on registered job should return true")
	}
	if c.IsPaused("job-2") {
		t.Fatal("IsPaused should report false after Resume")
	}
}

func TestPauseUnknownJob(t *testing.T) {
	c := NewController()
	if c.Pause("missing") {
		t.Fatal("Pause on an unregistered job should return false")
	}
	if c.IsPaused("missing") {
		t.Fatal("IsPaused on an unregistered job should return false")
	}
}

func TestUnregisterDropsJob(t *testing.T) {
	c := NewController()
	c.Register(context.Background(), "job-3")
	c.Unregister("job-3")

	if c.Cancel("job-3") {
		t.Fatal("Cancel should fail after Unregister")
	}
}

func TestProgressReporterClampsPercent(t *testing.T) {
	var got []int
	r := NewProgressReporter(time.Hour, func(p int) { got = append(got, p) })

	r.Report(-5)
	r.Report(500)

	if len(got) != 2 || got[0] != 0 || got[1] != 100 {
		t.Fatalf("got %v, want [0 100]", got)
	}
}

func TestProgressReporterThrottles(t *testing.T) {
	var got []int
	r := NewProgressReporter(time.Hour, func(p int) { got = append(got, p) })

	r.Report(10)
	r.Report(20)
	r.Report(30)

	if len(got) != 1 || got[0] != 10 {
		t.Fatalf("got %v, want only the first report to pass the throttle", got)
	}
}

func TestProgressReporterAlwaysForwardsCompletion(t *testing.T) {
	var got []int
	r := NewProgressReporter(time.Hour, func(p int) { got = append(got, p) })

	r.Report(10)
	r.Report(100)

	if len(got) != 2 || got[1] != 100 {
		t.Fatalf("got %v, want a final 100%% report to bypass the throttle", got)
	}
}
