package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/book-recommendation-service/internal/booksources"
	"github.com/helixir/book-recommendation-service/internal/domain"
)

// newTestClient creates a client configured for testing with the given server URL.
func newTestClient(serverURL string) *Client {
	cfg := Config{
		BaseURL:   serverURL,
		Timeout:   5 * time.Second,
		RateLimit: 100,
		BurstSize: 100,
	}

	httpClient := booksources.NewHTTPClient(booksources.HTTPClientConfig{
		Source:     sourceName,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		RetryDelay: time.Millisecond,
		UserAgent:  "TestClient/1.0",
	})

	return NewWithHTTPClient(cfg, httpClient)
}

func sampleDocs() []Doc {
	return []Doc{
		{Key: "/works/OL1W", Title: "Dune Messiah", AuthorName: []string{"Frank Herbert"}},
		{
			Key:              "/works/OL893415W",
			Title:            "Dune",
			AuthorName:       []string{"Frank Herbert"},
			FirstPublishYear: 1965,
			RatingsAverage:   4.3,
			RatingsCount:     1200,
			CoverI:           12345,
			Subject:          []string{"Science fiction", "Deserts"},
		},
	}
}

func TestClient_Lookup(t *testing.T) {
	t.Run("returns exact title and author match", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/search.json", r.URL.Path)
			assert.Equal(t, "dune", r.URL.Query().Get("title"))
			assert.Equal(t, "herbert", r.URL.Query().Get("author"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			assert.Contains(t, r.URL.Query().Get("fields"), "ratings_count")
			json.NewEncoder(w).Encode(SearchResponse{NumFound: 2, Docs: sampleDocs()})
		}))
		defer server.Close()

		rec, err := newTestClient(server.URL).Lookup(context.Background(), "dune", "herbert")
		require.NoError(t, err)
		require.NotNil(t, rec)

		assert.Equal(t, "/works/OL893415W", rec.Key)
		assert.Equal(t, 1965, rec.FirstPublishYear)
		assert.Equal(t, 1200, rec.RatingsCount)
		assert.Equal(t, "12345", rec.CoverID)
	})

	t.Run("co-authored search hit is found again", func(t *testing.T) {
		goodOmens := Doc{
			Key:              "/works/OL452109W",
			Title:            "Good Omens",
			AuthorName:       []string{"Terry Pratchett", "Neil Gaiman"},
			FirstPublishYear: 1990,
			RatingsAverage:   4.2,
			RatingsCount:     310,
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if title := r.URL.Query().Get("title"); title != "" {
				assert.Equal(t, "Good Omens", title)
				assert.Equal(t, "Terry Pratchett", r.URL.Query().Get("author"))
			}
			json.NewEncoder(w).Encode(SearchResponse{NumFound: 1, Docs: []Doc{goodOmens}})
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		hits, err := client.Search(context.Background(), "apocalypse comedy", "eng", 30)
		require.NoError(t, err)
		require.Len(t, hits, 1)

		rec, err := client.Lookup(context.Background(), hits[0].Title, strings.Join(hits[0].Authors, ", "))
		require.NoError(t, err)
		assert.Equal(t, "/works/OL452109W", rec.Key)
		assert.Equal(t, 1990, rec.FirstPublishYear)
		assert.Equal(t, 310, rec.RatingsCount)
	})

	t.Run("any listed author matches", func(t *testing.T) {
		doc := Doc{Title: "Good Omens", AuthorName: []string{"Neil Gaiman"}}
		assert.True(t, doc.matches("good omens", "Terry Pratchett, Neil Gaiman"))
		assert.False(t, doc.matches("good omens", "Terry Pratchett, Stephen Baxter"))
		assert.False(t, doc.matches("bad omens", "Neil Gaiman"))
	})

	t.Run("no match is not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(SearchResponse{NumFound: 2, Docs: sampleDocs()})
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Lookup(context.Background(), "Dune", "Asimov")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("empty response is not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"numFound":0,"docs":[]}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Lookup(context.Background(), "Nothing", "Nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("upstream error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("blocked"))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Lookup(context.Background(), "Dune", "Herbert")
		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Lookup(context.Background(), "Dune", "Herbert")
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	})
}

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desert planet", r.URL.Query().Get("q"))
		assert.Equal(t, "ger", r.URL.Query().Get("language"))
		assert.Equal(t, "30", r.URL.Query().Get("limit"))
		docs := append(sampleDocs(), Doc{Key: "/works/OL9W", Title: "  "})
		json.NewEncoder(w).Encode(SearchResponse{NumFound: 3, Docs: docs})
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Search(context.Background(), "desert planet", "ger", 30)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Dune Messiah", records[0].Title)
	assert.Equal(t, "", records[0].CoverID)
	assert.Equal(t, []string{"Science fiction", "Deserts"}, records[1].Subjects)
}

func TestClient_Description(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"plain string", `{"key":"/works/OL1W","description":"A desert planet."}`, "A desert planet."},
		{"typed value", `{"key":"/works/OL1W","description":{"type":"/type/text","value":"Spice."}}`, "Spice."},
		{"missing", `{"key":"/works/OL1W"}`, ""},
		{"unexpected shape", `{"key":"/works/OL1W","description":42}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/works/OL1W.json", r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			desc, err := newTestClient(server.URL).Description(context.Background(), "/works/OL1W")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, desc)
		})
	}

	t.Run("missing work", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Description(context.Background(), "/works/OL404W")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := newTestClient("http://unused").Description(context.Background(), "works/OL1W")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestSynthesizeDescription(t *testing.T) {
	rec := domain.BookRecord{
		Title:    "Dune",
		Authors:  []string{"Frank Herbert", "Brian Herbert"},
		Subjects: []string{"a", "b", "c", "d", "e", "f"},
	}
	assert.Equal(t, "Dune. Written by Frank Herbert, Brian Herbert. Subjects: a, b, c, d, e.", SynthesizeDescription(rec))
	assert.Equal(t, "Dune.", SynthesizeDescription(domain.BookRecord{Title: "Dune"}))
}
