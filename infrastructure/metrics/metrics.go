// Package metrics provides Prometheus metrics collection for the worker core.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sitemapindexerpro/workercore/infrastructure/runtime"
)

// Metrics holds all Prometheus collectors exported by the worker core.
type Metrics struct {
	// Discovery / submission counters
	URLsDiscoveredTotal      prometheus.Counter
	GoogleSubmissionsTotal   *prometheus.CounterVec // labels: status
	IndexNowSubmissionsTotal *prometheus.CounterVec // labels: status
	ErrorsTotal              *prometheus.CounterVec // labels: kind
	JobsTotal                *prometheus.CounterVec // labels: type

	// Histograms
	JobDurationMs         *prometheus.HistogramVec // labels: type
	SitemapScanDurationMs prometheus.Histogram
	APILatencyMs          *prometheus.HistogramVec // labels: engine

	// Gauges
	ActiveJobs prometheus.Gauge
	QueueSize  *prometheus.GaugeVec // labels: queue

	ServiceInfo *prometheus.GaugeVec
}

// New creates a Metrics instance registered on the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered on a custom registry.
// Tests pass a fresh prometheus.NewRegistry() to avoid collisions.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		URLsDiscoveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urls_discovered_total",
			Help: "Total number of distinct URLs discovered across all sitemap scans",
		}),
		GoogleSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "google_submissions_total",
				Help: "Total number of Google Indexing API submissions by outcome",
			},
			[]string{"status"},
		),
		IndexNowSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexnow_submissions_total",
				Help: "Total number of IndexNow submissions by outcome",
			},
			[]string{"status"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"kind"},
		),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobs_total",
				Help: "Total number of jobs processed by type",
			},
			[]string{"type"},
		),
		JobDurationMs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "job_duration_ms",
				Help:    "Job processing duration in milliseconds",
				Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000, 60000, 300000},
			},
			[]string{"type"},
		),
		SitemapScanDurationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitemap_scan_duration_ms",
			Help:    "Duration of a single sitemap fetch+parse in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
		}),
		APILatencyMs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "api_latency_ms",
				Help:    "Outbound API call latency in milliseconds",
				Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
			},
			[]string{"engine"},
		),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_jobs",
			Help: "Number of jobs currently in PROCESSING state",
		}),
		QueueSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "queue_size",
				Help: "Approximate number of pending items per queue",
			},
			[]string{"queue"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service build/environment information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.URLsDiscoveredTotal,
			m.GoogleSubmissionsTotal,
			m.IndexNowSubmissionsTotal,
			m.ErrorsTotal,
			m.JobsTotal,
			m.JobDurationMs,
			m.SitemapScanDurationMs,
			m.APILatencyMs,
			m.ActiveJobs,
			m.QueueSize,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)
	return m
}

// RecordURLsDiscovered increments the discovery counter by n.
func (m *Metrics) RecordURLsDiscovered(n int) {
	m.URLsDiscoveredTotal.Add(float64(n))
}

// RecordGoogleSubmission records one Google submission outcome.
func (m *Metrics) RecordGoogleSubmission(status string) {
	m.GoogleSubmissionsTotal.WithLabelValues(status).Inc()
}

// RecordIndexNowSubmission records one IndexNow submission outcome.
func (m *Metrics) RecordIndexNowSubmission(status string) {
	m.IndexNowSubmissionsTotal.WithLabelValues(status).Inc()
}

// RecordError increments the error counter for the given kind.
func (m *Metrics) RecordError(kind string) {
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordJob records a completed job's type and duration.
func (m *Metrics) RecordJob(jobType string, duration time.Duration) {
	m.JobsTotal.WithLabelValues(jobType).Inc()
	m.JobDurationMs.WithLabelValues(jobType).Observe(float64(duration.Milliseconds()))
}

// RecordSitemapScan records the duration of one sitemap fetch+parse.
func (m *Metrics) RecordSitemapScan(duration time.Duration) {
	m.SitemapScanDurationMs.Observe(float64(duration.Milliseconds()))
}

// RecordAPILatency records outbound API latency for an engine (google|indexnow).
func (m *Metrics) RecordAPILatency(engine string, duration time.Duration) {
	m.APILatencyMs.WithLabelValues(engine).Observe(float64(duration.Milliseconds()))
}

// SetActiveJobs sets the current count of PROCESSING jobs.
func (m *Metrics) SetActiveJobs(n int) {
	m.ActiveJobs.Set(float64(n))
}

// SetQueueSize sets the approximate pending size of a named queue.
func (m *Metrics) SetQueueSize(queue string, n int) {
	m.QueueSize.WithLabelValues(queue).Set(float64(n))
}

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
//   - production: disabled unless explicitly enabled via METRICS_ENABLED
//   - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance (idempotent).
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance, initializing a fallback if needed.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("worker-core")
	}
	return globalMetrics
}
