package booksources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

func newFastClient(metrics *observability.Metrics) *HTTPClient {
	return NewHTTPClient(HTTPClientConfig{
		Source:     "test",
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Metrics:    metrics,
	})
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{})

		require.NotNil(t, client)
		assert.Equal(t, 10*time.Second, client.client.Timeout)
		assert.Equal(t, DefaultUserAgent, client.config.UserAgent)
		assert.Equal(t, "upstream", client.Source())
		assert.Equal(t, 2, client.config.MaxRetries)
		assert.Equal(t, float64(5), client.config.RateLimit)
	})

	t.Run("negative retries disables retrying", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{MaxRetries: -1})
		assert.Equal(t, 0, client.config.MaxRetries)
	})
}

func TestHTTPClient_Do(t *testing.T) {
	t.Run("sets User-Agent and returns body", func(t *testing.T) {
		var receivedUserAgent string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedUserAgent = r.Header.Get("User-Agent")
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		client := newFastClient(nil)
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req, "search")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"status":"ok"}`, string(body))
		assert.Equal(t, DefaultUserAgent, receivedUserAgent)
	})

	t.Run("preserves existing User-Agent header", func(t *testing.T) {
		var receivedUserAgent string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedUserAgent = r.Header.Get("User-Agent")
		}))
		defer server.Close()

		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := newFastClient(nil).Do(req, "search")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "Mozilla/5.0", receivedUserAgent)
	})

	t.Run("non-retryable status is returned to caller", func(t *testing.T) {
		var requestCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := newFastClient(nil).Do(req, "works")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, int32(1), requestCount.Load())
	})
}

func TestHTTPClient_Retries(t *testing.T) {
	t.Run("retries on 503 and succeeds", func(t *testing.T) {
		var requestCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requestCount.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := newFastClient(nil).Do(req, "search")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, int32(3), requestCount.Load())
	})

	t.Run("exhausted 5xx becomes ExternalAPIError", func(t *testing.T) {
		metrics := observability.NewMetrics("test_booksources_exhausted")
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}))
		defer server.Close()

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		_, err := newFastClient(metrics).Do(req, "search")
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "upstream down")
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SourceRequestsFailed.WithLabelValues("test", "search", "http_502")))
	})

	t.Run("exhausted 429 is a rate limit error", func(t *testing.T) {
		metrics := observability.NewMetrics("test_booksources_429")
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		_, err := newFastClient(metrics).Do(req, "search")
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SourceRateLimited.WithLabelValues("test")))
	})

	t.Run("resends body on retry", func(t *testing.T) {
		var bodies []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(b))
			if len(bodies) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader("payload"))
		resp, err := newFastClient(nil).Do(req, "post")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, []string{"payload", "payload"}, bodies)
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{RateLimit: 1000, BurstSize: 10, MaxRetries: 5, RetryDelay: time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		_, err := client.Do(req, "search")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestHTTPClient_GetRetryDelay(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{RetryDelay: 250 * time.Millisecond})

	tests := []struct {
		name     string
		header   string
		expected time.Duration
	}{
		{"no header", "", 250 * time.Millisecond},
		{"seconds", "3", 3 * time.Second},
		{"zero seconds", "0", 250 * time.Millisecond},
		{"garbage", "soon", 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			assert.Equal(t, tt.expected, client.getRetryDelay(resp))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	rl.SetBurst(5)
	rl.SetRate(1000)
	require.NoError(t, rl.Wait(context.Background()))
	assert.GreaterOrEqual(t, rl.Tokens(), float64(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewRateLimiter(0.001, 1)
	slow.Allow()
	assert.Error(t, slow.Wait(ctx))
}
