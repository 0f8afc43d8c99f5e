// Package resilience provides error classification and named circuit breakers
// for the upstream collaborators of the recommendation pipeline.
package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// ErrorCategory classifies errors by whether a later attempt can succeed.
type ErrorCategory int

const (
	// Transient errors are temporary failures (timeouts, rate limits, 5xx,
	// open circuits) that count against a collaborator's health.
	Transient ErrorCategory = iota

	// Permanent errors are answers rather than failures: not found, invalid
	// input or malformed output. They do not trip breakers.
	Permanent
)

// String returns a human-readable name for the category.
func (c ErrorCategory) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// transientSubstrings are error message substrings that indicate a transient failure
// when the error is not already classified by a structured error type.
var transientSubstrings = []string{
	"timeout",
	"network",
	"connection refused",
	"connection reset",
	"circuit breaker",
	"rate limit",
	"rate_limit",
	"server_error",
	"service unavailable",
	"temporary",
	"deadline exceeded",
	"i/o timeout",
}

// permanentSubstrings indicate a permanent failure. "unauthorized" is used
// instead of "auth" so that "author" does not match.
var permanentSubstrings = []string{
	"unauthorized",
	"forbidden",
	"bad request",
	"not found",
	"invalid request",
	"validation",
	"content_filter",
}

// transientError is implemented by errors that know whether they are retryable,
// such as llm.APIError.
type transientError interface {
	IsTransient() bool
}

// Classify inspects err and returns its ErrorCategory.
//
// Classification priority:
//  1. Nil errors and caller cancellation: Permanent
//  2. Errors exposing IsTransient()
//  3. Open circuits and domain sentinel errors
//  4. Error message substring matching (transient checked first)
//  5. Default: Transient
func Classify(err error) ErrorCategory {
	if err == nil || errors.Is(err, context.Canceled) {
		return Permanent
	}

	var te transientError
	if errors.As(err, &te) {
		if te.IsTransient() {
			return Transient
		}
		return Permanent
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Transient
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrServiceUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrMalformedResponse) {
		return Permanent
	}

	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
		return Permanent
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}
	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return Permanent
		}
	}

	return Transient
}

// IsCircuitOpen reports whether err was returned because a breaker rejected the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
