// Package kcls scrapes the KCLS BiblioCommons catalog for title availability.
package kcls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/helixir/book-recommendation-service/internal/availability"
	"github.com/helixir/book-recommendation-service/internal/booksources"
	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

const (
	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 4 * time.Second

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 4.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 4

	sourceName      = "kcls"
	maxResponseSize = 5 << 20
)

// formatCodes maps media types to BiblioCommons format codes.
var formatCodes = map[domain.MediaType]string{
	domain.MediaTypeBook:      "bk",
	domain.MediaTypeEbook:     "ebook",
	domain.MediaTypeAudiobook: "CS OR BOOK_CD OR AB OR PLAYAWAY_AUDIOBOOK",
}

// Config holds configuration for the KCLS client.
type Config struct {
	// BaseURL is the catalog base URL. Defaults to https://kcls.bibliocommons.com
	BaseURL string

	// Timeout is the request timeout. Defaults to 4 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// UserAgent overrides the default User-Agent; the catalog serves
	// different markup to unknown agents.
	UserAgent string
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = availability.DefaultCatalogURL
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
}

// Client checks the catalog by running a bibliographic search and parsing the
// result page.
type Client struct {
	config     Config
	httpClient *booksources.HTTPClient
}

// Ensure Client implements availability.Checker.
var _ availability.Checker = (*Client)(nil)

// New creates a new KCLS client with the given configuration.
func New(cfg Config, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := booksources.NewHTTPClient(booksources.HTTPClientConfig{
		Source:     sourceName,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: -1,
		UserAgent:  cfg.UserAgent,
		Metrics:    metrics,
	})

	return &Client{config: cfg, httpClient: httpClient}
}

// NewWithHTTPClient creates a new KCLS client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *booksources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// FormatCode returns the catalog format code for a media type.
func FormatCode(media domain.MediaType) string {
	if code, ok := formatCodes[media]; ok {
		return code
	}
	return formatCodes[domain.MediaTypeBook]
}

// SearchURL returns the bibliographic search URL for a title, author and format.
func (c *Client) SearchURL(title, author string, media domain.MediaType) string {
	raw := fmt.Sprintf("(title:(%s) AND contributor:(%s)) formatcode:(%s)",
		strings.ToLower(strings.TrimSpace(title)), domain.AuthorLastName(author), FormatCode(media))
	return c.config.BaseURL + "/v2/search?custom_edit=false&query=" + url.QueryEscape(raw) + "&searchType=bl&suppress=true"
}

// Check searches the catalog and reports whether a matching result exists and
// whether its first listed manifestation can be borrowed. Exists is false when
// no result title matches. An error means the page could not be fetched.
func (c *Client) Check(ctx context.Context, title, author string, media domain.MediaType) (domain.Availability, error) {
	searchURL := c.SearchURL(title, author, media)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return domain.Availability{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req, "search")
	if err != nil {
		return domain.Availability{}, fmt.Errorf("executing search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return domain.Availability{}, domain.NewExternalAPIError("KCLS", resp.StatusCode, string(body), nil)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.Availability{}, domain.NewMalformedResponseError(sourceName, err.Error())
	}

	result := c.parse(doc, title)
	if result.CatalogLink == "" {
		result.CatalogLink = searchURL
	}
	return result, nil
}

// parse walks the search results looking for the first result whose title
// contains or is contained in the wanted title and that lists a manifestation
// with an availability status.
func (c *Client) parse(doc *goquery.Document, title string) domain.Availability {
	want := strings.ToLower(strings.TrimSpace(title))
	result := domain.Availability{Known: true}

	doc.Find("li.cp-search-result-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		found := strings.TrimSpace(item.Find(".title-content").First().Text())
		if found == "" {
			return true
		}
		have := strings.ToLower(found)
		if !strings.Contains(want, have) && !strings.Contains(have, want) {
			return true
		}

		matched := false
		item.Find("div.manifestation-item").EachWithBreak(func(_ int, m *goquery.Selection) bool {
			status := m.Find("span.cp-availability-status").First()
			if status.Length() == 0 {
				return true
			}

			text := strings.ToLower(strings.TrimSpace(status.Text()))
			result.Available = strings.Contains(text, "available") && !strings.Contains(text, "not")
			if href, ok := m.Find("a.manifestation-item-link").First().Attr("href"); ok && href != "" {
				result.CatalogLink = c.absolute(href)
			}
			matched = true
			return false
		})

		if matched {
			result.Exists = true
			result.MatchedTitle = found
			return false
		}
		return true
	})

	return result
}

func (c *Client) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.config.BaseURL + "/" + strings.TrimLeft(href, "/")
}
