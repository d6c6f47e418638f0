// Package model defines the persistent entities shared across the worker
// core: projects, sitemaps, URL entries, submissions, jobs, credentials,
// quota usage, and log events.
package model

import "time"

// SitemapKind classifies a fetched sitemap document.
type SitemapKind string

const (
	SitemapKindIndex  SitemapKind = "INDEX"
	SitemapKindURLSet SitemapKind = "URLSET"
	SitemapKindRSS    SitemapKind = "RSS"
)

// SubmissionEngine identifies the outbound indexing engine.
type SubmissionEngine string

const (
	EngineGoogle   SubmissionEngine = "GOOGLE"
	EngineIndexNow SubmissionEngine = "INDEXNOW"
)

// SubmissionAction mirrors the Google Indexing API's notification types;
// IndexNow treats both the same way (a single ping).
type SubmissionAction string

const (
	ActionURLUpdated SubmissionAction = "URL_UPDATED"
	ActionURLDeleted SubmissionAction = "URL_DELETED"
)

// SubmissionStatus is the lifecycle state of one submission attempt row.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "PENDING"
	SubmissionSucceeded SubmissionStatus = "SUCCEEDED"
	SubmissionFailed    SubmissionStatus = "FAILED"
)

// JobType enumerates the work a queue message can carry.
type JobType string

const (
	JobFullScan          JobType = "FULL_SCAN"
	JobIncrementalSync   JobType = "INCREMENTAL_SYNC"
	JobGoogleSubmission  JobType = "GOOGLE_SUBMISSION"
	JobIndexNowSubmission JobType = "INDEXNOW_SUBMISSION"
	JobStatusCheck       JobType = "STATUS_CHECK"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCancelled  JobStatus = "CANCELLED"
)

// CachedCounters is Project's eventually-consistent aggregate over its
// UrlEntry rows.
type CachedCounters struct {
	Total   int `json:"total"`
	Indexed int `json:"indexed"`
	Pending int `json:"pending"`
	Error   int `json:"error"`
}

// Project is the tenant-scoped owner of all child entities.
type Project struct {
	ID               string         `db:"id" json:"id"`
	OrganizationID   string         `db:"organization_id" json:"organizationId"`
	Domain           string         `db:"domain" json:"domain"`
	RootSitemapURL   string         `db:"root_sitemap_url" json:"rootSitemapUrl"`
	Settings         []byte         `db:"settings" json:"settings"`
	CachedCounters   CachedCounters `db:"-" json:"cachedCounters"`
	LastScanAt       *time.Time     `db:"last_scan_at" json:"lastScanAt,omitempty"`
	LastSubmissionAt *time.Time     `db:"last_submission_at" json:"lastSubmissionAt,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
}

// Sitemap is one fetched sitemap document, possibly a node in a sitemap
// index tree (ParentID non-nil).
type Sitemap struct {
	ID            string      `db:"id" json:"id"`
	ProjectID     string      `db:"project_id" json:"projectId"`
	URL           string      `db:"url" json:"url"`
	Kind          SitemapKind `db:"kind" json:"kind"`
	ParentID      *string     `db:"parent_id" json:"parentId,omitempty"`
	URLCount      int         `db:"url_count" json:"urlCount"`
	ETag          *string     `db:"etag" json:"etag,omitempty"`
	LastModified  *string     `db:"last_modified" json:"lastModified,omitempty"`
	LastFetchedAt *time.Time  `db:"last_fetched_at" json:"lastFetchedAt,omitempty"`
	ContentHash   string      `db:"content_hash" json:"contentHash"`
}

// EngineStatus tracks one engine's submission state for a UrlEntry.
type EngineStatus struct {
	Status         string     `json:"status"`
	SubmittedAt    *time.Time `json:"submittedAt,omitempty"`
	LastCheckedAt  *time.Time `json:"lastCheckedAt,omitempty"`
}

// UrlEntry is one discovered URL, unique per (ProjectID, LocHash).
type UrlEntry struct {
	ID            string     `db:"id" json:"id"`
	ProjectID     string     `db:"project_id" json:"projectId"`
	SitemapID     *string    `db:"sitemap_id" json:"sitemapId,omitempty"`
	Loc           string     `db:"loc" json:"loc"`
	LocHash       string     `db:"loc_hash" json:"locHash"`
	LastMod       *string    `db:"lastmod" json:"lastmod,omitempty"`
	ChangeFreq    *string    `db:"changefreq" json:"changefreq,omitempty"`
	Priority      *float64   `db:"priority" json:"priority,omitempty"`
	GoogleStatus  string     `db:"google_status" json:"googleStatus"`
	BingStatus    string     `db:"bing_status" json:"bingStatus"`
	FirstSeenAt   time.Time  `db:"first_seen_at" json:"firstSeenAt"`
	RemovedAt     *time.Time `db:"removed_at" json:"removedAt,omitempty"`
}

// Submission is one append-only attempt-batch row.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	URLID        string           `db:"url_id" json:"urlId"`
	ProjectID    string           `db:"project_id" json:"projectId"`
	Engine       SubmissionEngine `db:"engine" json:"engine"`
	Action       SubmissionAction `db:"action" json:"action"`
	Status       SubmissionStatus `db:"status" json:"status"`
	Attempts     int              `db:"attempts" json:"attempts"`
	MaxAttempts  int              `db:"max_attempts" json:"maxAttempts"`
	ResponseCode *int             `db:"response_code" json:"responseCode,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"errorMessage,omitempty"`
	ScheduledAt  time.Time        `db:"scheduled_at" json:"scheduledAt"`
	StartedAt    *time.Time       `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt  *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
	NextRetryAt  *time.Time       `db:"next_retry_at" json:"nextRetryAt,omitempty"`
}

// Job is one unit of queued work tracked end-to-end for progress reporting.
type Job struct {
	ID             string                 `db:"id" json:"id"`
	ProjectID      string                 `db:"project_id" json:"projectId"`
	Type           JobType                `db:"type" json:"type"`
	Status         JobStatus              `db:"status" json:"status"`
	Progress       int                    `db:"progress" json:"progress"`
	TotalItems     int                    `db:"total_items" json:"totalItems"`
	ProcessedItems int                    `db:"processed_items" json:"processedItems"`
	Metadata       map[string]interface{} `db:"-" json:"metadata,omitempty"`
	ScheduledAt    time.Time              `db:"scheduled_at" json:"scheduledAt"`
	StartedAt      *time.Time             `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt    *time.Time             `db:"completed_at" json:"completedAt,omitempty"`
	ErrorMessage   *string                `db:"error_message" json:"errorMessage,omitempty"`
}

// Credential is a per-(project,engine) encrypted secret (service-account
// JSON for Google, an IndexNow key for IndexNow).
type Credential struct {
	ID            string           `db:"id" json:"id"`
	ProjectID     string           `db:"project_id" json:"projectId"`
	Engine        SubmissionEngine `db:"engine" json:"engine"`
	Type          string           `db:"type" json:"type"`
	EncryptedData []byte           `db:"encrypted_data" json:"-"`
	IV            []byte           `db:"iv" json:"-"`
	AuthTag       []byte           `db:"auth_tag" json:"-"`
	Salt          []byte           `db:"salt" json:"-"`
	IsValid       bool             `db:"is_valid" json:"isValid"`
	ExpiresAt     *time.Time       `db:"expires_at" json:"expiresAt,omitempty"`
	LastUsedAt    *time.Time       `db:"last_used_at" json:"lastUsedAt,omitempty"`
}

// QuotaUsage tracks daily submission counts per (project, engine, day).
type QuotaUsage struct {
	ProjectID string           `db:"project_id" json:"projectId"`
	Engine    SubmissionEngine `db:"engine" json:"engine"`
	Date      time.Time        `db:"date" json:"date"`
	Used      int              `db:"used" json:"used"`
	Limit     int              `db:"limit" json:"limit"`
}

// LogModule tags which subsystem emitted a LogEvent.
type LogModule string

const (
	ModuleStream LogModule = "STREAM"
	ModuleDB     LogModule = "DB"
	ModuleWorker LogModule = "WORKER"
	ModuleAPI    LogModule = "API"
)

// LogLevel is the severity of a LogEvent.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"
	LevelSuccess LogLevel = "success"
)

// LogEvent is an ephemeral record published on the live event bus, never
// persisted beyond the bus's own buffering.
type LogEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Module    LogModule `json:"module"`
	Message   string    `json:"message"`
	JobID     *string   `json:"jobId,omitempty"`
	ProjectID *string   `json:"projectId,omitempty"`
}
