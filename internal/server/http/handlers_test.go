package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/pipeline"
	"github.com/helixir/book-recommendation-service/internal/session"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

type mockRecommender struct {
	mu          sync.Mutex
	requests    []pipeline.Request
	recommendFn func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

func (m *mockRecommender) Recommend(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.recommendFn != nil {
		return m.recommendFn(ctx, req)
	}
	return &pipeline.Result{Query: domain.ParsedQuery{Language: "english"}}, nil
}

type mockRenderer struct {
	renderFn func(books []domain.RankedBook, language string) (string, error)
}

func (m *mockRenderer) Render(books []domain.RankedBook, language string) (string, error) {
	if m.renderFn != nil {
		return m.renderFn(books, language)
	}
	return "<p>ok</p>", nil
}

type mockBreakers struct{}

func (mockBreakers) States() map[string]string {
	return map[string]string{"llm": "closed"}
}

func newTestServer(t *testing.T, cfg Config, rec Recommender, store session.Store) *Server {
	t.Helper()
	if store == nil {
		store = session.NewMemoryStore(session.Config{})
	}
	return NewServer(cfg, Deps{
		Recommender:  rec,
		Renderer:     &mockRenderer{},
		Sessions:     store,
		Breakers:     mockBreakers{},
		SystemPrompt: "You help.",
		Logger:       zerolog.Nop(),
	})
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func rankedBook(title, author string) domain.RankedBook {
	return domain.RankedBook{EnrichedBook: domain.EnrichedBook{
		CandidateBook: domain.CandidateBook{Title: title, Author: author, MediaType: domain.MediaTypeBook},
	}}
}

// ---------------------------------------------------------------------------
// POST /chat
// ---------------------------------------------------------------------------

func TestChat_Success(t *testing.T) {
	rec := &mockRecommender{recommendFn: func(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
		return &pipeline.Result{
			Query:    domain.ParsedQuery{Language: "german"},
			Books:    []domain.RankedBook{rankedBook("Dune", "Frank Herbert")},
			Degraded: true,
		}, nil
	}}
	s := newTestServer(t, Config{}, rec, nil)
	s.renderer = &mockRenderer{renderFn: func(books []domain.RankedBook, language string) (string, error) {
		assert.Len(t, books, 1)
		assert.Equal(t, "german", language)
		return `<p class="summary">x</p>`, nil
	}}

	rr := postChat(t, s.Handler(), `{"message":"  sci-fi classics  "}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	body := decodeBody(t, rr)
	assert.Equal(t, `<p class="summary">x</p>`, body["message"])
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, true, body["degraded"])

	require.Len(t, rec.requests, 1)
	assert.Equal(t, "sci-fi classics", rec.requests[0].Message)
	assert.Equal(t, "SYSTEM: You help.\nUSER: sci-fi classics", rec.requests[0].Prompt)
	assert.Equal(t, body["session_id"], rec.requests[0].SessionID)
}

func TestChat_SessionHistoryFeedsPrompt(t *testing.T) {
	rec := &mockRecommender{recommendFn: func(context.Context, pipeline.Request) (*pipeline.Result, error) {
		return &pipeline.Result{Books: []domain.RankedBook{rankedBook("Emma", "Jane Austen")}}, nil
	}}
	store := session.NewMemoryStore(session.Config{})
	s := newTestServer(t, Config{}, rec, store)

	first := postChat(t, s.Handler(), `{"message":"regency romance","session_id":"s-1"}`)
	require.Equal(t, http.StatusOK, first.Code)
	second := postChat(t, s.Handler(), `{"message":"something darker","session_id":"s-1"}`)
	require.Equal(t, http.StatusOK, second.Code)

	require.Len(t, rec.requests, 2)
	assert.Equal(t,
		"SYSTEM: You help.\nASSISTANT: [{\"title\":\"Emma\",\"author\":\"Jane Austen\"}]\nUSER: something darker",
		rec.requests[1].Prompt)

	entries, err := store.Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, "s-1", decodeBody(t, second)["session_id"])
}

func TestChat_NoBooksIsNotAnError(t *testing.T) {
	s := newTestServer(t, Config{}, &mockRecommender{}, nil)
	rr := postChat(t, s.Handler(), `{"message":"zzzz"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	_, hasDegraded := decodeBody(t, rr)["degraded"]
	assert.False(t, hasDegraded)
}

func TestChat_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{name: "invalid json", body: `{"message":`, status: http.StatusBadRequest, message: "body invalid JSON request body"},
		{name: "missing message", body: `{}`, status: http.StatusBadRequest, message: "message is required"},
		{name: "blank message", body: `{"message":"   "}`, status: http.StatusBadRequest, message: "message is required"},
		{name: "message too long", body: `{"message":"` + strings.Repeat("a", 2001) + `"}`, status: http.StatusBadRequest, message: "message must be at most 2000 characters"},
		{name: "session id too long", body: `{"message":"hi","session_id":"` + strings.Repeat("s", 129) + `"}`, status: http.StatusBadRequest, message: "session_id must be at most 128 characters"},
		{name: "body too large", body: `{"message":"` + strings.Repeat("a", 20<<10) + `"}`, status: http.StatusRequestEntityTooLarge, message: "request body too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecommender{}
			s := newTestServer(t, Config{MaxBodyBytes: 16 << 10}, rec, nil)

			rr := postChat(t, s.Handler(), tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.message, decodeBody(t, rr)["error"])
			assert.Empty(t, rec.requests)
		})
	}
}

func TestChat_MessageLimitCountsCharacters(t *testing.T) {
	s := newTestServer(t, Config{}, &mockRecommender{}, nil)
	rr := postChat(t, s.Handler(), `{"message":"`+strings.Repeat("é", 2000)+`"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestChat_UpstreamErrors(t *testing.T) {
	t.Run("cancelled pipeline is 503", func(t *testing.T) {
		rec := &mockRecommender{recommendFn: func(context.Context, pipeline.Request) (*pipeline.Result, error) {
			return nil, context.Canceled
		}}
		s := newTestServer(t, Config{}, rec, nil)
		rr := postChat(t, s.Handler(), `{"message":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("request timeout is 503", func(t *testing.T) {
		rec := &mockRecommender{recommendFn: func(ctx context.Context, _ pipeline.Request) (*pipeline.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		s := newTestServer(t, Config{RequestTimeout: 20 * time.Millisecond}, rec, nil)
		rr := postChat(t, s.Handler(), `{"message":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("unexpected failure is 500", func(t *testing.T) {
		rec := &mockRecommender{recommendFn: func(context.Context, pipeline.Request) (*pipeline.Result, error) {
			return nil, errors.New("boom")
		}}
		s := newTestServer(t, Config{}, rec, nil)
		rr := postChat(t, s.Handler(), `{"message":"x"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "internal server error", decodeBody(t, rr)["error"])
	})

	t.Run("render failure is 500", func(t *testing.T) {
		s := newTestServer(t, Config{}, &mockRecommender{}, nil)
		s.renderer = &mockRenderer{renderFn: func([]domain.RankedBook, string) (string, error) {
			return "", errors.New("template")
		}}
		rr := postChat(t, s.Handler(), `{"message":"x"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestChat_ShutdownCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	rec := &mockRecommender{recommendFn: func(ctx context.Context, _ pipeline.Request) (*pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := newTestServer(t, Config{}, rec, nil)

	srv := httptest.NewUnstartedServer(s.Handler())
	srv.Config.BaseContext = s.httpServer.BaseContext
	srv.Start()
	defer srv.Close()

	done := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message":"x"}`))
		if err == nil {
			done <- resp
		}
		close(done)
	}()

	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_ = s.Shutdown(ctx)

	resp, ok := <-done
	require.True(t, ok)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, Config{}, &mockRecommender{}, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]any{"llm": "closed"}, body["breakers"])

	s.draining.Store(true)
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "draining", decodeBody(t, rr)["status"])
}

// ---------------------------------------------------------------------------
// writeDomainError
// ---------------------------------------------------------------------------

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", domain.NewValidationError("message", "is required"), http.StatusBadRequest},
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"too large", errRequestTooLarge, http.StatusRequestEntityTooLarge},
		{"rate limited", domain.NewRateLimitError("chat", time.Second), http.StatusTooManyRequests},
		{"unavailable", domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{"cancelled", domain.ErrCancelled, http.StatusServiceUnavailable},
		{"other", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeDomainError(rr, tt.err)
			assert.Equal(t, tt.status, rr.Code)
		})
	}

	rr := httptest.NewRecorder()
	writeDomainError(rr, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
}
