// Package sitemap fetches and streams-parses sitemap documents: XML
// sitemap indexes, URL sets, and RSS/Atom feeds used as sitemap
// substitutes by some CMSes.
package sitemap

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
)

const userAgent = "SitemapIndexerPro/2.0"

// Fetcher retrieves sitemap documents over HTTP with retry/backoff and
// transparent gzip handling.
type Fetcher struct {
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
}

// FetchResult carries the raw (decompressed) body plus caching headers.
type FetchResult struct {
	Body         io.ReadCloser
	ETag         string
	LastModified string
	NotModified  bool
}

// Fetch performs the GET with retry on network errors and 5xx, and no
// retry on 4xx. A matching prior ETag yields NotModified=true on a 304.
func (f *Fetcher) Fetch(ctx context.Context, url, priorETag string) (*FetchResult, error) {
	var lastErr error
	delay := f.baseDelay

	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		result, retryable, err := f.attempt(ctx, url, priorETag)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, workererrors.Transient("sitemap fetch exhausted retries", lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url, priorETag string) (*FetchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, workererrors.InvalidSitemap(url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	if priorETag != "" {
		req.Header.Set("If-None-Match", priorETag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, workererrors.Transient("fetch sitemap", err)
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return &FetchResult{NotModified: true, ETag: priorETag}, false, nil
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, true, workererrors.Transient("sitemap server error", httpStatusErr(resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, false, workererrors.InvalidSitemap(url, httpStatusErr(resp.StatusCode))
	}

	body := resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" || strings.HasSuffix(url, ".gz") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			body.Close()
			return nil, false, workererrors.InvalidSitemap(url, err)
		}
		body = gzipReadCloser{Reader: gz, underlying: resp.Body}
	}

	return &FetchResult{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, false, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	underlying io.ReadCloser
}

func (g gzipReadCloser) Close() error {
	_ = g.Reader.Close()
	return g.underlying.Close()
}

type httpStatusErr int

func (e httpStatusErr) Error() string {
	return http.StatusText(int(e))
}
