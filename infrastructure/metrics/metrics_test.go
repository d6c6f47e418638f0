package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordURLsDiscoveredIncrementsCounter(t *testing.T) {
	m := NewWithRegistry("test", prometheus.NewRegistry())
	m.RecordURLsDiscovered(5)
	m.RecordURLsDiscovered(3)

	if got := counterValue(t, m.URLsDiscoveredTotal); got != 8 {
		t.Errorf("URLsDiscoveredTotal = %v, want 8", got)
	}
}

func TestRecordGoogleSubmissionLabelsByStatus(t *testing.T) {
	m := NewWithRegistry("test", prometheus.NewRegistry())
	m.RecordGoogleSubmission("succeeded")
	m.RecordGoogleSubmission("succeeded")
	m.RecordGoogleSubmission("quota_exceeded")

	if got := counterValue(t, m.GoogleSubmissionsTotal.WithLabelValues("succeeded")); got != 2 {
		t.Errorf("succeeded count = %v, want 2", got)
	}
	if got := counterValue(t, m.GoogleSubmissionsTotal.WithLabelValues("quota_exceeded")); got != 1 {
		t.Errorf("quota_exceeded count = %v, want 1", got)
	}
}

func TestRecordJobUpdatesCounterAndHistogram(t *testing.T) {
	m := NewWithRegistry("test", prometheus.NewRegistry())
	m.RecordJob("SCAN", 150*time.Millisecond)

	if got := counterValue(t, m.JobsTotal.WithLabelValues("SCAN")); got != 1 {
		t.Errorf("JobsTotal = %v, want 1", got)
	}
}

func TestSetActiveJobsAndQueueSize(t *testing.T) {
	m := NewWithRegistry("test", prometheus.NewRegistry())
	m.SetActiveJobs(3)
	m.SetQueueSize("sitemap-scanner", 10)

	var g dto.Metric
	if err := m.ActiveJobs.Write(&g); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if g.GetGauge().GetValue() != 3 {
		t.Errorf("ActiveJobs = %v, want 3", g.GetGauge().GetValue())
	}
}

func TestEnabledRespectsExplicitOverride(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "false")
	if Enabled() {
		t.Fatal("Enabled() should honor an explicit METRICS_ENABLED=false")
	}

	t.Setenv("METRICS_ENABLED", "true")
	if !Enabled() {
		t.Fatal("Enabled() should honor an explicit METRICS_ENABLED=true")
	}
}

func TestEnabledDefaultsToOnOutsideProduction(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("NODE_ENV", "development")
	t.Setenv("ENVIRONMENT", "")

	if !Enabled() {
		t.Fatal("Enabled() should default to true outside production")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	globalMetrics = nil
	first := Init("svc-a")
	second := Init("svc-b")
	if first != second {
		t.Fatal("Init() should return the same instance on subsequent calls")
	}
}
