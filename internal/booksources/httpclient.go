package booksources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

// DefaultUserAgent identifies the service to upstream APIs.
const DefaultUserAgent = "Helixir-BookRecommendationService/1.0"

// maxErrorBodySize bounds how much of an error response is kept in messages.
const maxErrorBodySize = 4 << 10

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source names the upstream API in errors and metrics (e.g. "openlibrary").
	Source string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts. Negative disables retries.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Metrics records per-request counters when set.
	Metrics *observability.Metrics
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client applies rate limiting before each attempt and retries on
// 429 (Too Many Requests), 5xx responses and network errors.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Source == "" {
		cfg.Source = "upstream"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Source returns the configured upstream name.
func (c *HTTPClient) Source() string {
	return c.config.Source
}

// Do executes req with rate limiting and retries. Retryable statuses that
// persist after the last attempt are returned as *domain.ExternalAPIError.
// Requests with a body must set GetBody to be retried.
func (c *HTTPClient) Do(req *http.Request, endpoint string) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.do(req)
	if c.config.Metrics != nil {
		c.config.Metrics.RecordSourceRequest(c.config.Source, endpoint, time.Since(start).Seconds())
		if err != nil {
			c.config.Metrics.RecordSourceRequestFailed(c.config.Source, endpoint, errorType(err))
		}
	}
	return resp, err
}

func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = domain.NewExternalAPIError(c.config.Source, 0, "request failed", err)
			if attempt < c.config.MaxRetries {
				if err := c.prepareRetry(req, c.config.RetryDelay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if !shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		retryDelay := c.getRetryDelay(resp)
		lastErr = c.statusError(resp)

		if attempt < c.config.MaxRetries {
			if resp.StatusCode == http.StatusTooManyRequests && c.config.Metrics != nil {
				c.config.Metrics.RecordSourceRateLimited(c.config.Source)
			}
			if err := c.prepareRetry(req, retryDelay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %w", domain.NewRateLimitError(c.config.Source, retryDelay), lastErr)
		}
		return nil, lastErr
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

// statusError drains and closes the response body and wraps the status in an
// ExternalAPIError.
func (c *HTTPClient) statusError(resp *http.Response) error {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return domain.NewExternalAPIError(c.config.Source, resp.StatusCode, string(body), nil)
}

func (c *HTTPClient) prepareRetry(req *http.Request, delay time.Duration) error {
	if err := waitForRetry(req.Context(), delay); err != nil {
		return err
	}
	if err := resetRequestBody(req); err != nil {
		return fmt.Errorf("cannot retry request: %w", err)
	}
	return nil
}

// shouldRetry reports whether the status code is worth another attempt.
func shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay honours a Retry-After header in seconds or HTTP-date form,
// falling back to the configured delay.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

// waitForRetry waits for delay or until ctx is done.
func waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody rewinds the request body for a retry when possible.
func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

// errorType buckets an error into a short metric label.
func errorType(err error) string {
	var apiErr *domain.ExternalAPIError
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &apiErr) && apiErr.StatusCode > 0:
		return "http_" + strconv.Itoa(apiErr.StatusCode)
	default:
		return "network"
	}
}
