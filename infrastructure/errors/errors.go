// Package errors provides the error-kind taxonomy used across the worker
// core: Transient, FatalPerJob, FatalPerURL, InvalidInput, and
// InvariantViolation. Call sites classify through Kind so broker retry
// decisions and per-call retry loops share one policy instead of
// re-deriving it ad hoc.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse error classification.
type Kind string

const (
	// KindTransient covers network timeouts, 5xx, and rate limiting:
	// retried locally with backoff, then redelivered by the broker up to
	// maxAttempts before the job fails.
	KindTransient Kind = "TRANSIENT"
	// KindFatalPerJob covers quota exhaustion, permission denial, and
	// invalid credentials: the current job fails with no further retry.
	KindFatalPerJob Kind = "FATAL_PER_JOB"
	// KindFatalPerURL covers 4xx responses other than 403/429: recorded on
	// the submission row, the job continues to the next URL.
	KindFatalPerURL Kind = "FATAL_PER_URL"
	// KindInvalidInput covers malformed sitemaps/URLs and unreachable roots.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindInvariantViolation covers drift the core does not self-repair,
	// e.g. cached counters diverging from the underlying rows.
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"
)

// ErrorCode identifies a specific condition within a Kind.
type ErrorCode string

const (
	ErrCodeQuotaExhausted    ErrorCode = "QUOTA_EXHAUSTED"
	ErrCodeQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	ErrCodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	ErrCodeInvalidCredential ErrorCode = "INVALID_CREDENTIAL"
	ErrCodeInvalidSitemap    ErrorCode = "INVALID_SITEMAP"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrCodeJobAborted        ErrorCode = "JOB_ABORTED"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeUpstream          ErrorCode = "UPSTREAM_ERROR"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeInternal          ErrorCode = "INTERNAL"
)

// ServiceError is a structured error carrying the classification needed to
// decide retry vs short-circuit behavior, plus an HTTP status for the
// event bus's control endpoints.
type ServiceError struct {
	Kind       Kind                   `json:"kind"`
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Kind, e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Retryable reports whether the local call loop should retry this error.
func (e *ServiceError) Retryable() bool { return e.Kind == KindTransient }

func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(kind Kind, code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Named constructors for the conditions the worker core distinguishes.

func Transient(message string, err error) *ServiceError {
	return Wrap(KindTransient, ErrCodeUpstream, message, http.StatusBadGateway, err)
}

func RateLimited(message string) *ServiceError {
	return New(KindTransient, ErrCodeRateLimited, message, http.StatusTooManyRequests)
}

func Timeout(operation string) *ServiceError {
	return New(KindTransient, ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func QuotaExhausted(remaining int) *ServiceError {
	return New(KindFatalPerJob, ErrCodeQuotaExhausted, "daily quota exhausted", http.StatusTooManyRequests).
		WithDetails("remaining", remaining)
}

func QuotaExceeded(message string) *ServiceError {
	return New(KindFatalPerJob, ErrCodeQuotaExceeded, message, http.StatusTooManyRequests)
}

func PermissionDenied(message string) *ServiceError {
	return New(KindFatalPerJob, ErrCodePermissionDenied, message, http.StatusForbidden)
}

func InvalidCredential(err error) *ServiceError {
	return Wrap(KindFatalPerJob, ErrCodeInvalidCredential, "credential is invalid or tampered", http.StatusUnauthorized, err)
}

func InvalidSitemap(url string, err error) *ServiceError {
	return Wrap(KindInvalidInput, ErrCodeInvalidSitemap, fmt.Sprintf("could not parse sitemap at %s", url), http.StatusBadRequest, err)
}

func InvalidInput(field, reason string) *ServiceError {
	return New(KindInvalidInput, ErrCodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func Conflict(message string) *ServiceError {
	return New(KindFatalPerJob, ErrCodeConflict, message, http.StatusConflict)
}

func NotFound(resource, id string) *ServiceError {
	return New(KindInvalidInput, ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, id string) *ServiceError {
	return New(KindFatalPerJob, ErrCodeAlreadyExists, "resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func JobAborted() *ServiceError {
	return New(KindFatalPerJob, ErrCodeJobAborted, "job aborted by operator", http.StatusConflict)
}

func PerURLError(message string, err error) *ServiceError {
	return Wrap(KindFatalPerURL, ErrCodeUpstream, message, http.StatusBadRequest, err)
}

func InvariantViolation(message string) *ServiceError {
	return New(KindInvariantViolation, ErrCodeInternal, message, http.StatusInternalServerError)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(KindInvariantViolation, ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// KindOf returns the Kind of err, defaulting to KindTransient for
// unclassified errors so unexpected failures get retried rather than
// silently dropped.
func KindOf(err error) Kind {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Kind
	}
	return KindTransient
}

// IsRetryable reports whether err should be retried locally.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
