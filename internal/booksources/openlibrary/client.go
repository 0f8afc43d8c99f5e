// Package openlibrary implements the bibliographic lookups against the
// OpenLibrary search and works APIs.
package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/book-recommendation-service/internal/booksources"
	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

const (
	// DefaultBaseURL is the default OpenLibrary base URL.
	DefaultBaseURL = "https://openlibrary.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultLookupLimit is how many hits a title/author lookup inspects.
	DefaultLookupLimit = 10

	// sourceName labels errors and metrics.
	sourceName = "openlibrary"

	lookupFields = "key,title,author_name,first_publish_year,number_of_pages_median," +
		"ratings_average,ratings_count,cover_i,subject"

	maxResponseSize = 10 << 20
)

// Config holds configuration for the OpenLibrary client.
type Config struct {
	// BaseURL is the OpenLibrary base URL. Defaults to https://openlibrary.org
	BaseURL string

	// Timeout is the request timeout. Defaults to 10 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to 5.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed. Defaults to 5.
	BurstSize int

	// LookupLimit is how many hits a lookup inspects for an exact match.
	LookupLimit int
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.LookupLimit == 0 {
		c.LookupLimit = DefaultLookupLimit
	}
}

// Client talks to OpenLibrary. It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *booksources.HTTPClient
}

// New creates a new OpenLibrary client with the given configuration.
func New(cfg Config, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := booksources.NewHTTPClient(booksources.HTTPClientConfig{
		Source:    sourceName,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		Metrics:   metrics,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenLibrary client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *booksources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Lookup finds the record whose title equals title (ignoring case) and whose
// author list contains author. It returns a *domain.NotFoundError when no hit
// matches.
func (c *Client) Lookup(ctx context.Context, title, author string) (*domain.BookRecord, error) {
	params := url.Values{}
	params.Set("title", title)
	// The search API matches a single author name.
	if primary, _, _ := strings.Cut(author, ","); strings.TrimSpace(primary) != "" {
		params.Set("author", strings.TrimSpace(primary))
	}
	params.Set("fields", lookupFields)
	params.Set("limit", strconv.Itoa(c.config.LookupLimit))

	var resp SearchResponse
	if err := c.getJSON(ctx, c.config.BaseURL+"/search.json?"+params.Encode(), "lookup", &resp); err != nil {
		return nil, err
	}

	for _, doc := range resp.Docs {
		if doc.matches(title, author) {
			rec := doc.toRecord()
			return &rec, nil
		}
	}

	return nil, domain.NewNotFoundError("book", title+" by "+author)
}

// Search runs a keyword search restricted to a language code. Hits without a
// title are skipped.
func (c *Client) Search(ctx context.Context, terms, languageCode string, limit int) ([]domain.BookRecord, error) {
	params := url.Values{}
	params.Set("q", terms)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if languageCode != "" {
		params.Set("language", languageCode)
	}

	var resp SearchResponse
	if err := c.getJSON(ctx, c.config.BaseURL+"/search.json?"+params.Encode(), "search", &resp); err != nil {
		return nil, err
	}

	records := make([]domain.BookRecord, 0, len(resp.Docs))
	for _, doc := range resp.Docs {
		if strings.TrimSpace(doc.Title) == "" {
			continue
		}
		records = append(records, doc.toRecord())
	}
	return records, nil
}

// Description fetches the description of a work such as "/works/OL45804W".
// A work without a description yields an empty string.
func (c *Client) Description(ctx context.Context, workKey string) (string, error) {
	if !strings.HasPrefix(workKey, "/") {
		return "", domain.NewValidationError("work_key", "must start with /")
	}

	var work Work
	if err := c.getJSON(ctx, c.config.BaseURL+workKey+".json", "works", &work); err != nil {
		return "", err
	}
	return work.DescriptionText(), nil
}

func (c *Client) getJSON(ctx context.Context, rawURL, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req, endpoint)
	if err != nil {
		return fmt.Errorf("executing %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.NewNotFoundError(endpoint, rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError("OpenLibrary", resp.StatusCode, string(body), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewMalformedResponseError(sourceName, "empty body")
		}
		return fmt.Errorf("decoding %s response: %w", endpoint, domain.NewMalformedResponseError(sourceName, err.Error()))
	}
	return nil
}
