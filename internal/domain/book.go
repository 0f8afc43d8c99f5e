package domain

import "strings"

// MediaType identifies the format a reader asked for.
type MediaType string

const (
	// MediaTypeBook is a printed book. It is the default format.
	MediaTypeBook MediaType = "book"

	// MediaTypeEbook is an electronic book.
	MediaTypeEbook MediaType = "ebook"

	// MediaTypeAudiobook is a recorded audiobook.
	MediaTypeAudiobook MediaType = "audiobook"
)

// ParseMediaType maps free text to a MediaType, defaulting to MediaTypeBook.
func ParseMediaType(s string) MediaType {
	switch MediaType(strings.ToLower(strings.TrimSpace(s))) {
	case MediaTypeEbook:
		return MediaTypeEbook
	case MediaTypeAudiobook:
		return MediaTypeAudiobook
	default:
		return MediaTypeBook
	}
}

// CandidateBook is a book suggested by a candidate source before enrichment.
type CandidateBook struct {
	// Title is required and never empty once a source has sanitized its output.
	Title string `json:"title"`

	// Author is the display author, possibly several names joined by commas.
	Author string `json:"author"`

	// MediaType is the requested format.
	MediaType MediaType `json:"media_type"`
}

// BookRecord is a bibliographic record returned by the metadata lookup.
type BookRecord struct {
	// Key is the OpenLibrary work key (e.g. "/works/OL45804W").
	Key string

	Title            string
	Authors          []string
	FirstPublishYear int
	PageCount        int
	RatingsAverage   float64
	RatingsCount     int

	// CoverID is the opaque OpenLibrary cover identifier, empty when absent.
	CoverID string

	Subjects []string
}

// Metadata is the bibliographic part of an enriched book.
type Metadata struct {
	Description      string
	RatingsAverage   float64
	RatingsCount     int
	CoverID          string
	FirstPublishYear int

	// Known is false when the lookup failed and the fields hold defaults.
	Known bool
}

// Availability is the library-catalog part of an enriched book.
type Availability struct {
	// Exists reports whether the catalog confirmed the title at all.
	Exists bool

	// Available reports whether at least one copy can be borrowed now.
	Available bool

	// CatalogLink is always a well-formed URL. It falls back to a generic
	// catalog search when no exact manifestation was found.
	CatalogLink string

	// MatchedTitle is the title as the catalog spells it, when matched.
	MatchedTitle string

	// Known is false when the check failed and the fields hold defaults.
	Known bool
}

// EnrichedBook is a candidate merged with its metadata and availability partials.
type EnrichedBook struct {
	CandidateBook
	Metadata
	Availability
}

// RankingText returns the text embedded for semantic scoring: the description
// when present, the title otherwise.
func (b EnrichedBook) RankingText() string {
	if d := strings.TrimSpace(b.Description); d != "" {
		return d
	}
	return b.Title
}

// RankedBook is an enriched book with its composite score and the components
// that produced it.
type RankedBook struct {
	EnrichedBook

	Score        float64
	Semantic     float64
	Popularity   float64
	RecencyScore float64
}
