package googlesub

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/internal/model"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestWorker(fn roundTripperFunc) *Worker {
	return &Worker{httpClient: &http.Client{Transport: fn}}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestSubmitOneSuccess(t *testing.T) {
	w := newTestWorker(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{}`), nil
	})

	status, code, err := w.submitOne(context.Background(), "tok", "https://example.com/a", model.ActionURLUpdated)
	if err != nil {
		t.Fatalf("submitOne() error = %v", err)
	}
	if status != model.SubmissionSucceeded || code != 200 {
		t.Fatalf("status=%v code=%d, want Succeeded/200", status, code)
	}
}

func TestSubmitOnePermissionDenied(t *testing.T) {
	w := newTestWorker(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(403, `{"error":{"message":"The caller does not have permission"}}`), nil
	})

	status, code, err := w.submitOne(context.Background(), "tok", "https://example.com/a", model.ActionURLUpdated)
	if status != model.SubmissionFailed || code != 403 {
		t.Fatalf("status=%v code=%d, want Failed/403", status, code)
	}
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.ErrCodePermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestSubmitOneQuotaExceeded(t *testing.T) {
	w := newTestWorker(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(429, `{"error":{"message":"Quota exceeded for quota group"}}`), nil
	})

	_, _, err := w.submitOne(context.Background(), "tok", "https://example.com/a", model.ActionURLUpdated)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.ErrCodeQuotaExceeded {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
}

func TestSubmitOneFatalPerURLOn4xx(t *testing.T) {
	w := newTestWorker(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(400, `{"error":{"message":"invalid url"}}`), nil
	})

	status, _, err := w.submitOne(context.Background(), "tok", "https://example.com/a", model.ActionURLUpdated)
	if status != model.SubmissionFailed {
		t.Fatalf("status = %v, want Failed", status)
	}
	se := errors.GetServiceError(err)
	if se == nil || se.Kind != errors.KindFatalPerURL {
		t.Fatalf("expected KindFatalPerURL, got %v", err)
	}
}

func TestSubmitOneRetriesServerErrorThenSucceeds(t *testing.T) {
	attempts := 0
	w := newTestWorker(func(r *http.Request) (*http.Response, error) {
		attempts++
		if attempts < 3 {
			return jsonResponse(500, `{}`), nil
		}
		return jsonResponse(200, `{}`), nil
	})

	status, _, err := w.submitOne(context.Background(), "tok", "https://example.com/a", model.ActionURLUpdated)
	if err != nil {
		t.Fatalf("submitOne() error = %v", err)
	}
	if status != model.SubmissionSucceeded {
		t.Fatalf("status = %v, want Succeeded after retries", status)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestSubmitOneTransientAfterExhaustingServerErrorRetries(t *testing.T) {
	w := newTestWorker(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(503, `{}`), nil
	})

	status, _, err := w.submitOne(context.Background(), "tok", "https://example.com/a", model.ActionURLUpdated)
	if status != model.SubmissionFailed {
		t.Fatalf("status = %v, want Failed", status)
	}
	se := errors.GetServiceError(err)
	if se == nil || se.Kind != errors.KindTransient {
		t.Fatalf("expected KindTransient after exhausting retries on 5xx, got %v", err)
	}
}
