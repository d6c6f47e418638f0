// Command scheduler periodically enqueues incremental-sync and submission
// jobs for every active project, driven by robfig/cron.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/sitemapindexerpro/workercore/infrastructure/logging"
	"github.com/sitemapindexerpro/workercore/internal/config"
	"github.com/sitemapindexerpro/workercore/internal/jobstore"
	"github.com/sitemapindexerpro/workercore/internal/model"
	"github.com/sitemapindexerpro/workercore/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New("scheduler", cfg.LogLevel, cfg.LogFormat)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal(context.Background(), "open database", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal(context.Background(), "parse redis url", err)
	}
	rdb := redis.NewClient(opts)

	broker := queue.New(rdb, queue.Config{MaxAttempts: cfg.QueueMaxAttempts, RetryBase: cfg.QueueRetryBaseDelay})
	jobs := jobstore.New(db)

	c := cron.New()
	_, err = c.AddFunc("@every 1h", func() {
		enqueueIncrementalSyncs(context.Background(), db, broker, jobs, log)
	})
	if err != nil {
		log.Fatal(context.Background(), "register incremental sync schedule", err)
	}

	_, err = c.AddFunc("@every 15m", func() {
		enqueuePendingSubmissions(context.Background(), db, broker, jobs, log)
	})
	if err != nil {
		log.Fatal(context.Background(), "register submission schedule", err)
	}

	c.Start()
	log.Info(context.Background(), "scheduler started", nil)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx := c.Stop()
	<-ctx.Done()
}

func enqueueIncrementalSyncs(ctx context.Context, db *sql.DB, broker *queue.Broker, jobs *jobstore.Store, log *logging.Logger) {
	rows, err := db.QueryContext(ctx, `SELECT id, root_sitemap_url FROM projects`)
	if err != nil {
		log.WithError(err).Error("list projects for incremental sync failed")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, rootURL string
		if err := rows.Scan(&projectID, &rootURL); err != nil {
			log.WithError(err).Warn("scan project row failed")
			continue
		}

		job := &model.Job{
			ID:          newJobID(),
			ProjectID:   projectID,
			Type:        model.JobIncrementalSync,
			ScheduledAt: time.Now().UTC(),
		}
		if err := jobs.Create(ctx, job); err != nil {
			log.WithError(err).WithField("project_id", projectID).Warn("create incremental sync job failed")
			continue
		}

		payload := map[string]interface{}{
			"projectId":  projectID,
			"jobId":      job.ID,
			"sitemapUrl": rootURL,
			"depth":      0,
		}
		if _, err := broker.Enqueue(ctx, queue.QueueScanner, payload); err != nil {
			log.WithError(err).WithField("project_id", projectID).Warn("enqueue incremental sync failed")
		}
	}
}

func enqueuePendingSubmissions(ctx context.Context, db *sql.DB, broker *queue.Broker, jobs *jobstore.Store, log *logging.Logger) {
	enqueueForEngine(ctx, db, broker, jobs, log, model.EngineGoogle, queue.QueueGoogleSubmitter)
	enqueueForEngine(ctx, db, broker, jobs, log, model.EngineIndexNow, queue.QueueIndexNow)
}

func enqueueForEngine(ctx context.Context, db *sql.DB, broker *queue.Broker, jobs *jobstore.Store, log *logging.Logger, engine model.SubmissionEngine, queueName string) {
	statusColumn := "google_status"
	if engine == model.EngineIndexNow {
		statusColumn = "bing_status"
	}

	rows, err := db.QueryContext(ctx, `
		SELECT project_id, array_agg(id)
		FROM url_entries
		WHERE `+statusColumn+` = 'DISCOVERED' AND removed_at IS NULL
		GROUP BY project_id
	`)
	if err != nil {
		log.WithError(err).WithField("engine", string(engine)).Error("list pending urls failed")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var projectID string
		var urlIDs []string
		if err := rows.Scan(&projectID, pq.Array(&urlIDs)); err != nil {
			log.WithError(err).Warn("scan pending url row failed")
			continue
		}

		job := &model.Job{
			ID:          newJobID(),
			ProjectID:   projectID,
			Type:        jobTypeFor(engine),
			ScheduledAt: time.Now().UTC(),
			TotalItems:  len(urlIDs),
		}
		if err := jobs.Create(ctx, job); err != nil {
			log.WithError(err).WithField("project_id", projectID).Warn("create submission job failed")
			continue
		}

		payload := map[string]interface{}{
			"projectId": projectID,
			"jobId":     job.ID,
			"urlIds":    urlIDs,
			"action":    model.ActionURLUpdated,
		}
		if _, err := broker.Enqueue(ctx, queueName, payload); err != nil {
			log.WithError(err).WithField("project_id", projectID).Warn("enqueue submission job failed")
		}
	}
}

func jobTypeFor(engine model.SubmissionEngine) model.JobType {
	if engine == model.EngineIndexNow {
		return model.JobIndexNowSubmission
	}
	return model.JobGoogleSubmission
}

func newJobID() string {
	return uuid.NewString()
}
