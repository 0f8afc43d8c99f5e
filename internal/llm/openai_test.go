package llm

import (
	"context"
	"encoding/json"
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

// Compile-time interface check.
var _ CandidateGenerator = (*OpenAIProvider)(nil)

func newOpenAITestProvider(t *testing.T, handler http.HandlerFunc, metrics *observability.Metrics) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-api-key",
		Model:   "gpt-4.1-mini",
		BaseURL: srv.URL + "/v1",
	}, Options{
		Temperature: 0.2,
		Timeout:     5 * time.Second,
		MaxRetries:  0,
		Metrics:     metrics,
	})
}

func chatCompletionJSON(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4.1-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 90, "completion_tokens": 30, "total_tokens": 120},
	})
	return string(body)
}

func TestOpenAIProvider_Generate(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("test_openai_generate")
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			Model               string `json:"model"`
			MaxCompletionTokens int    `json:"max_completion_tokens"`
			Messages            []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "gpt-4.1-mini", req.Model)
		assert.Equal(t, defaultMaxTokens, req.MaxCompletionTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, SystemPrompt, req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "books like Piranesi\n\nRecommend 4 books.", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionJSON("```json\n[{\"title\":\"Jonathan Strange & Mr Norrell\",\"author\":\"Susanna Clarke\",\"media_type\":\"ebook\"}]\n```"))
	}, metrics)

	books, err := provider.Generate(context.Background(), "books like Piranesi", 4)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, domain.CandidateBook{
		Title:     "Jonathan Strange & Mr Norrell",
		Author:    "Susanna Clarke",
		MediaType: domain.MediaTypeEbook,
	}, books[0])

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues(generateOperation, "gpt-4.1-mini")))
	assert.Equal(t, float64(30), testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues(generateOperation, "gpt-4.1-mini", "output")))
}

func TestOpenAIProvider_Generate_MalformedContent(t *testing.T) {
	t.Parallel()

	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionJSON("Here are some great reads!"))
	}, nil)

	_, err := provider.Generate(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestOpenAIProvider_Generate_APIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		sentinel   error
		transient  bool
	}{
		{name: "rate limited", statusCode: http.StatusTooManyRequests, sentinel: domain.ErrRateLimited, transient: true},
		{name: "server error", statusCode: http.StatusInternalServerError, sentinel: domain.ErrUpstreamUnavailable, transient: true},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, sentinel: domain.ErrUpstreamUnavailable, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			provider := newOpenAITestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"test_error","code":"test_code"}}`)
			}, nil)

			_, err := provider.Generate(context.Background(), "anything", 5)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "openai", apiErr.Provider)
			assert.Equal(t, tt.statusCode, apiErr.StatusCode)
			assert.Equal(t, tt.transient, apiErr.IsTransient())
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, int32(1), calls.Load(), "retries are disabled")
		})
	}
}

func TestOpenAIProvider_Identity(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k"}, Options{})
	assert.Equal(t, "openai", p.Provider())
	assert.Equal(t, DefaultOpenAIModel, p.Model())
	assert.Equal(t, defaultMaxTokens, p.maxTokens)
}

func TestMapOpenAIError_Network(t *testing.T) {
	t.Parallel()

	err := mapOpenAIError("openai", io.ErrUnexpectedEOF)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.Equal(t, "network_error", apiErr.Type)
	assert.True(t, apiErr.IsTransient())
}
