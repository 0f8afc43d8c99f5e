package kcls

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/book-recommendation-service/internal/booksources"
	"github.com/helixir/book-recommendation-service/internal/domain"
)

const resultsPage = `<html><body><ul>
<li class="row cp-search-result-item">
  <h2 class="cp-title"><span class="title-content">The Dark Tower</span></h2>
  <div class="manifestation-item cp-manifestation-list-item row">
    <div class="manifestation-item-availability-block-wrap">
      <span class="cp-availability-status">Available</span>
    </div>
    <a class="manifestation-item-link" href="/v2/record/S82C1">Book</a>
  </div>
</li>
<li class="row cp-search-result-item">
  <h2 class="cp-title"><span class="title-content">The Dark Forest</span></h2>
  <div class="manifestation-item cp-manifestation-list-item row">
    <div class="manifestation-item-availability-block-wrap">
      <span class="cp-availability-status">All copies in use</span>
    </div>
    <a class="manifestation-item-link" href="/v2/record/S82C2">eBook</a>
  </div>
</li>
<li class="row cp-search-result-item">
  <h2 class="cp-title"><span class="title-content">The Dark Forest (Remembrance of Earth's Past)</span></h2>
  <div class="manifestation-item cp-manifestation-list-item row">
    <div class="manifestation-item-availability-block-wrap">
      <span class="cp-availability-status">Available</span>
    </div>
    <a class="manifestation-item-link" href="/v2/record/S82C3">eBook</a>
  </div>
</li>
</ul></body></html>`

// newTestClient creates a client configured for testing with the given server URL.
func newTestClient(serverURL string) *Client {
	cfg := Config{BaseURL: serverURL, Timeout: 2 * time.Second}
	httpClient := booksources.NewHTTPClient(booksources.HTTPClientConfig{
		Source:     sourceName,
		RateLimit:  100,
		BurstSize:  100,
		MaxRetries: -1,
	})
	return NewWithHTTPClient(cfg, httpClient)
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "bk", FormatCode(domain.MediaTypeBook))
	assert.Equal(t, "ebook", FormatCode(domain.MediaTypeEbook))
	assert.Equal(t, "CS OR BOOK_CD OR AB OR PLAYAWAY_AUDIOBOOK", FormatCode(domain.MediaTypeAudiobook))
	assert.Equal(t, "bk", FormatCode("vinyl"))
}

func TestClient_SearchURL(t *testing.T) {
	c := newTestClient("https://kcls.bibliocommons.com")
	link := c.SearchURL("The Dark Forest", "Liu Cixin", domain.MediaTypeEbook)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/v2/search", u.Path)
	assert.Equal(t, "(title:(the dark forest) AND contributor:(cixin)) formatcode:(ebook)", u.Query().Get("query"))
	assert.Equal(t, "bl", u.Query().Get("searchType"))
	assert.Equal(t, "true", u.Query().Get("suppress"))
	assert.Equal(t, "false", u.Query().Get("custom_edit"))
}

func TestClient_Check(t *testing.T) {
	t.Run("first matching result decides", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Query().Get("query"), "contributor:(cixin)")
			w.Write([]byte(resultsPage))
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Check(context.Background(), "The Dark Forest", "Liu Cixin", domain.MediaTypeEbook)
		require.NoError(t, err)

		assert.True(t, got.Known)
		assert.True(t, got.Exists)
		assert.False(t, got.Available)
		assert.Equal(t, "The Dark Forest", got.MatchedTitle)
		assert.Equal(t, server.URL+"/v2/record/S82C2", got.CatalogLink)
	})

	t.Run("catalog title containing the wanted title matches", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<ul><li class="cp-search-result-item">
				<span class="title-content">Dune: Deluxe Edition</span>
				<div class="manifestation-item"><span class="cp-availability-status">Available </span>
				<a class="manifestation-item-link" href="https://elsewhere.test/x">x</a></div>
			</li></ul>`))
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Check(context.Background(), "Dune", "Frank Herbert", domain.MediaTypeBook)
		require.NoError(t, err)
		assert.True(t, got.Exists)
		assert.True(t, got.Available)
		assert.Equal(t, "https://elsewhere.test/x", got.CatalogLink)
	})

	t.Run("not available wording", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<ul><li class="cp-search-result-item">
				<span class="title-content">Dune</span>
				<div class="manifestation-item"><span class="cp-availability-status">Not available</span></div>
			</li></ul>`))
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Check(context.Background(), "Dune", "Herbert", domain.MediaTypeBook)
		require.NoError(t, err)
		assert.True(t, got.Exists)
		assert.False(t, got.Available)
		assert.Contains(t, got.CatalogLink, "searchType=bl")
	})

	t.Run("no matching title does not exist", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(resultsPage))
		}))
		defer server.Close()

		c := newTestClient(server.URL)
		got, err := c.Check(context.Background(), "Neuromancer", "Gibson", domain.MediaTypeBook)
		require.NoError(t, err)
		assert.True(t, got.Known)
		assert.False(t, got.Exists)
		assert.False(t, got.Available)
		assert.Equal(t, c.SearchURL("Neuromancer", "Gibson", domain.MediaTypeBook), got.CatalogLink)
	})

	t.Run("matching title without manifestations is skipped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<ul><li class="cp-search-result-item"><span class="title-content">Dune</span></li></ul>`))
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Check(context.Background(), "Dune", "Herbert", domain.MediaTypeBook)
		require.NoError(t, err)
		assert.False(t, got.Exists)
	})

	t.Run("upstream failure is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Check(context.Background(), "Dune", "Herbert", domain.MediaTypeBook)
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	})
}
