// Package presenter renders ranked books as the HTML fragment returned by the
// chat endpoint.
package presenter

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/helixir/book-recommendation-service/internal/availability"
	"github.com/helixir/book-recommendation-service/internal/domain"
)

// NoResultsMessage is shown when no book survived the pipeline.
const NoResultsMessage = "Sorry, no books were found matching your query."

// CoverURLFormat is the OpenLibrary cover image URL for a cover id.
const CoverURLFormat = "https://covers.openlibrary.org/b/id/%s-M.jpg"

//go:embed templates/*.tmpl
var templateFS embed.FS

var bookTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

var numberPrinter = message.NewPrinter(language.English)

// summaryFormats are the summary variants; each takes the book count.
var summaryFormats = []string{
	"Try these %d books for your next read",
	"%d results found",
	"You may enjoy these %d books",
	"I recommend these %d books for you",
}

// SummaryVariants is the number of summary sentences Summary can produce.
var SummaryVariants = len(summaryFormats)

// Presenter renders ranked books.
type Presenter struct {
	pick func(n int) int
}

// New creates a Presenter that picks summary variants at random.
func New() *Presenter {
	return &Presenter{pick: rand.IntN}
}

// NewWithPicker creates a Presenter with a deterministic variant picker.
func NewWithPicker(pick func(n int) int) *Presenter {
	return &Presenter{pick: pick}
}

type bookView struct {
	CoverURL         string
	Title            string
	Author           string
	Year             string
	Rating           string
	Description      string
	MediaType        string
	Available        bool
	AvailabilityText string
	Link             template.URL
}

type pageView struct {
	Summary string
	Books   []bookView
}

// Render returns the summary paragraph followed by one card per book.
// All text is HTML-escaped.
func (p *Presenter) Render(books []domain.RankedBook, lang string) (string, error) {
	page := pageView{
		Summary: Summary(len(books), lang, p.pick(len(summaryFormats))),
		Books:   make([]bookView, 0, len(books)),
	}
	for _, b := range books {
		page.Books = append(page.Books, view(b))
	}

	var buf bytes.Buffer
	if err := bookTemplates.ExecuteTemplate(&buf, "books", page); err != nil {
		return "", fmt.Errorf("render books: %w", err)
	}
	return buf.String(), nil
}

func view(b domain.RankedBook) bookView {
	v := bookView{
		Title:            b.Title,
		Author:           b.Author,
		Year:             Year(b.FirstPublishYear),
		Rating:           FormatRating(b.RatingsAverage, b.RatingsCount),
		Description:      b.Description,
		MediaType:        string(b.MediaType),
		Available:        b.Available,
		AvailabilityText: AvailabilityText(b.Available),
		Link:             safeLink(b.CatalogLink),
	}
	if b.CoverID != "" {
		v.CoverURL = fmt.Sprintf(CoverURLFormat, b.CoverID)
	}
	return v
}

// safeLink trusts only http(s) links so that template escaping cannot be
// bypassed with other schemes.
func safeLink(link string) template.URL {
	if strings.HasPrefix(link, "https://") || strings.HasPrefix(link, "http://") {
		return template.URL(link)
	}
	return template.URL("#")
}

// Summary returns the sentence shown above the books. pick selects one of the
// variants modulo SummaryVariants.
func Summary(n int, lang string, pick int) string {
	if n == 0 {
		return NoResultsMessage
	}

	suffix := "."
	if l := strings.ToLower(strings.TrimSpace(lang)); l != "" && l != "english" {
		suffix = ", available in " + availability.Capitalize(l) + "."
	}

	idx := pick % len(summaryFormats)
	if idx < 0 {
		idx += len(summaryFormats)
	}
	return fmt.Sprintf(summaryFormats[idx], n) + suffix
}

// FormatRating renders a rating as stars plus the average and count, for
// example "★★★★☆ 4.2/5 (1,234 ratings)". Half values round to even.
func FormatRating(avg float64, count int) string {
	if avg == 0 && count == 0 {
		return "Not rated"
	}

	full := int(math.RoundToEven(avg))
	full = max(0, min(5, full))

	return strings.Repeat("★", full) + strings.Repeat("☆", 5-full) +
		" " + strconv.FormatFloat(avg, 'f', 1, 64) + "/5 (" + numberPrinter.Sprintf("%d", count) + " ratings)"
}

// AvailabilityText describes whether a copy can be borrowed now.
func AvailabilityText(available bool) string {
	if available {
		return "Available"
	}
	return "All copies in use"
}

// Year renders a first publish year, or "Unknown".
func Year(year int) string {
	if year <= 0 {
		return "Unknown"
	}
	return strconv.Itoa(year)
}
