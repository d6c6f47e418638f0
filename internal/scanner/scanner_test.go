package scanner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/sitemapindexerpro/workercore/infrastructure/logging"
	"github.com/sitemapindexerpro/workercore/internal/jobstore"
	"github.com/sitemapindexerpro/workercore/internal/model"
	"github.com/sitemapindexerpro/workercore/internal/sitemap"
	"github.com/sitemapindexerpro/workercore/internal/urlstore"
)

func newTestWorker(t *testing.T) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	sqlxDB := sqlx.NewDb(db, "postgres")

	return &Worker{
		db:      sqlxDB,
		fetcher: sitemap.NewFetcher(2 * time.Second),
		urls:    urlstore.New(sqlxDB),
		jobs:    jobstore.New(sqlxDB.DB),
		log:     logging.New("test", "debug", "json"),
	}, mock
}

func TestRunProcessesLeafURLSet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/a</loc></url>
  <url><loc>https://example.com/b</loc></url>
</urlset>`))
	}))
	defer ts.Close()

	w, mock := newTestWorker(t)

	mock.ExpectExec("UPDATE jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec("INSERT INTO sitemap_visits").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("INSERT INTO sitemaps").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sitemap-1"))

	mock.ExpectExec("INSERT INTO url_entries").
		WillReturnResult(sqlmock.NewResult(0, 2))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"total", "indexed", "pending", "error"}).AddRow(2, 0, 2, 0))
	mock.ExpectExec("UPDATE projects").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := Payload{ProjectID: "proj-1", JobID: "job-1", SitemapURL: ts.URL, Depth: 0}
	if err := w.run(context.Background(), p, nil); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRunSkipsAlreadyVisitedURL(t *testing.T) {
	w, mock := newTestWorker(t)

	mock.ExpectExec("INSERT INTO sitemap_visits").
		WillReturnResult(sqlmock.NewResult(0, 0))

	p := Payload{ProjectID: "proj-1", JobID: "job-2", SitemapURL: "https://example.com/seen", Depth: 1}
	if err := w.run(context.Background(), p, nil); err != nil {
		t.Fatalf("run() on an already-visited url should be a no-op, got error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertInBatchesSplitsAcrossMaxBatchSize(t *testing.T) {
	w, mock := newTestWorker(t)

	entries := make([]sitemap.URLEntry, urlstore.MaxBatchSize+10)
	for i := range entries {
		entries[i] = sitemap.URLEntry{Loc: "https://example.com/page"}
	}

	mock.ExpectExec("INSERT INTO url_entries").WillReturnResult(sqlmock.NewResult(0, int64(urlstore.MaxBatchSize)))
	mock.ExpectExec("INSERT INTO url_entries").WillReturnResult(sqlmock.NewResult(0, 10))

	if err := w.upsertInBatches(context.Background(), "proj-1", "sitemap-1", entries, nil); err != nil {
		t.Fatalf("upsertInBatches() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertSitemapComputesContentHash(t *testing.T) {
	w, mock := newTestWorker(t)

	mock.ExpectQuery("INSERT INTO sitemaps").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sitemap-1"))

	result := &sitemap.ParseResult{
		Kind: model.SitemapKindURLSet,
		URLs: []sitemap.URLEntry{{Loc: "https://example.com/a"}},
	}
	id, err := w.upsertSitemap(context.Background(), "proj-1", "https://example.com/sitemap.xml", "", result)
	if err != nil {
		t.Fatalf("upsertSitemap() error = %v", err)
	}
	if id != "sitemap-1" {
		t.Errorf("id = %q, want sitemap-1", id)
	}
}
