// Command worker runs the sitemap-indexer worker core: the scanner,
// google-submitter, and indexnow-submitter queue consumers plus the live
// event bus's WebSocket and metrics endpoints.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sitemapindexerpro/workercore/infrastructure/logging"
	"github.com/sitemapindexerpro/workercore/infrastructure/metrics"
	"github.com/sitemapindexerpro/workercore/internal/config"
	"github.com/sitemapindexerpro/workercore/internal/credstore"
	"github.com/sitemapindexerpro/workercore/internal/eventbus"
	"github.com/sitemapindexerpro/workercore/internal/googlesub"
	"github.com/sitemapindexerpro/workercore/internal/indexnow"
	"github.com/sitemapindexerpro/workercore/internal/jobcontrol"
	"github.com/sitemapindexerpro/workercore/internal/jobstore"
	"github.com/sitemapindexerpro/workercore/internal/model"
	"github.com/sitemapindexerpro/workercore/internal/quotastore"
	"github.com/sitemapindexerpro/workercore/internal/queue"
	"github.com/sitemapindexerpro/workercore/internal/scanner"
	"github.com/sitemapindexerpro/workercore/internal/sitemap"
	"github.com/sitemapindexerpro/workercore/internal/urlstore"
	"github.com/sitemapindexerpro/workercore/internal/wsauth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	log := logging.New("workercore", cfg.LogLevel, cfg.LogFormat)
	m := metrics.New("workercore")

	sqlxDB, err := sqlx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal(context.Background(), "open database", err)
	}
	sqlxDB.SetMaxOpenConns(cfg.DBMaxConnections)
	sqlxDB.SetConnMaxIdleTime(cfg.DBIdleTimeout)
	rawDB := sqlxDB.DB

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal(context.Background(), "parse redis url", err)
	}
	opts.PoolSize = cfg.RedisPoolSize
	rdb := redis.NewClient(opts)

	broker := queue.New(rdb, queue.Config{MaxAttempts: cfg.QueueMaxAttempts, RetryBase: cfg.QueueRetryBaseDelay})

	creds := credstore.New(rawDB, cfg.EncryptionKey)
	quota := quotastore.New(rawDB)
	urls := urlstore.New(sqlxDB)
	jobs := jobstore.New(rawDB)
	fetcher := sitemap.NewFetcher(cfg.SitemapFetchTimeout)
	bus := eventbus.New(rdb, log, cfg.WSSendBufferSize)
	control := jobcontrol.NewController()

	lookupOrg := func(ctx context.Context, projectID string) (string, error) {
		var org string
		err := rawDB.QueryRowContext(ctx, `SELECT organization_id FROM projects WHERE id = $1`, projectID).Scan(&org)
		return org, err
	}
	lookupDomain := func(ctx context.Context, projectID string) (string, error) {
		var domain string
		err := rawDB.QueryRowContext(ctx, `SELECT domain FROM projects WHERE id = $1`, projectID).Scan(&domain)
		return domain, err
	}

	scanWorker := scanner.NewWorker(sqlxDB, fetcher, urls, jobs, m, log, bus, lookupOrg)
	scanGroup := queue.NewWorkerGroup(broker, queue.QueueScanner, cfg.ScannerConcurrency, scanWorker.Handle, log, control, jobs, bus, lookupOrg)

	recordSubmission := func(ctx context.Context, s *model.Submission) error {
		return recordSubmissionRow(ctx, rawDB, s)
	}
	markURLStatus := func(ctx context.Context, urlID, status string) error {
		return markGoogleStatus(ctx, rawDB, urlID, status)
	}
	googleWorker := googlesub.NewWorker(creds, quota, urls, jobs, m, log, cfg.GoogleDailyQuota, recordSubmission, markURLStatus, bus, lookupOrg)
	googleGroup := queue.NewWorkerGroup(broker, queue.QueueGoogleSubmitter, cfg.GoogleConcurrency, googleWorker.Handle, log, control, jobs, bus, lookupOrg)

	markBingURLStatus := func(ctx context.Context, urlID, status string) error {
		_, err := rawDB.ExecContext(ctx, `UPDATE url_entries SET bing_status = $1 WHERE id = $2`, status, urlID)
		return err
	}
	indexNowWorker := indexnow.NewWorker(creds, quota, urls, jobs, m, log, lookupDomain, recordSubmission, markBingURLStatus, bus, lookupOrg)
	indexNowGroup := queue.NewWorkerGroup(broker, queue.QueueIndexNow, cfg.IndexNowConcurrency, indexNowWorker.Handle, log, control, jobs, bus, lookupOrg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := bus.RunSubscriber(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("event bus subscriber stopped")
		}
	}()

	scanGroup.Start(ctx)
	googleGroup.Start(ctx)
	indexNowGroup.Start(ctx)

	verifier := wsauth.New(cfg.WSJwtSecret)
	wsServer := eventbus.NewServer(bus, verifier.Authenticate, log, m, cfg.WSPingInterval, control)

	httpServer := &http.Server{
		Addr:    ":" + itoa(cfg.WSPort),
		Handler: wsServer.Router(promhttp.Handler()),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info(context.Background(), "shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	cancel()
	scanGroup.Stop()
	googleGroup.Stop()
	indexNowGroup.Stop()
}

func recordSubmissionRow(ctx context.Context, db *sql.DB, s *model.Submission) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO submissions (id, url_id, project_id, engine, action, status, attempts, max_attempts, response_code, error_message, scheduled_at, completed_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	`, s.URLID, s.ProjectID, s.Engine, s.Action, s.Status, s.Attempts, s.MaxAttempts, s.ResponseCode, s.ErrorMessage, s.ScheduledAt)
	return err
}

func markGoogleStatus(ctx context.Context, db *sql.DB, urlID, status string) error {
	_, err := db.ExecContext(ctx, `UPDATE url_entries SET google_status = $1 WHERE id = $2`, status, urlID)
	return err
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
