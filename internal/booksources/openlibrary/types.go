package openlibrary

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// SearchResponse is the body of /search.json.
type SearchResponse struct {
	NumFound int   `json:"numFound"`
	Docs     []Doc `json:"docs"`
}

// Doc is one search hit. Fields missing from the response stay zero.
type Doc struct {
	Key                 string   `json:"key"`
	Title               string   `json:"title"`
	AuthorName          []string `json:"author_name"`
	FirstPublishYear    int      `json:"first_publish_year"`
	NumberOfPagesMedian int      `json:"number_of_pages_median"`
	RatingsAverage      float64  `json:"ratings_average"`
	RatingsCount        int      `json:"ratings_count"`
	CoverI              int64    `json:"cover_i"`
	Subject             []string `json:"subject"`
}

// Work is the subset of a work record this client reads.
type Work struct {
	Key         string          `json:"key"`
	Title       string          `json:"title"`
	Description json.RawMessage `json:"description"`
}

// DescriptionText returns the work description, which OpenLibrary encodes
// either as a plain string or as {"type": ..., "value": ...}.
func (w Work) DescriptionText() string {
	if len(w.Description) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(w.Description, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var typed struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(w.Description, &typed); err == nil {
		return strings.TrimSpace(typed.Value)
	}

	return ""
}

// toRecord converts a search hit into a domain record.
func (d Doc) toRecord() domain.BookRecord {
	rec := domain.BookRecord{
		Key:              d.Key,
		Title:            d.Title,
		Authors:          d.AuthorName,
		FirstPublishYear: d.FirstPublishYear,
		PageCount:        d.NumberOfPagesMedian,
		RatingsAverage:   d.RatingsAverage,
		RatingsCount:     d.RatingsCount,
		Subjects:         d.Subject,
	}
	if d.CoverI > 0 {
		rec.CoverID = strconv.FormatInt(d.CoverI, 10)
	}
	return rec
}

// matches reports whether the hit is the requested book: same title ignoring
// case and one of the requested authors contained in one of the listed
// authors. author may list several names separated by commas.
func (d Doc) matches(title, author string) bool {
	if d.Title == "" || !strings.EqualFold(strings.TrimSpace(d.Title), strings.TrimSpace(title)) {
		return false
	}

	wanted := splitAuthors(author)
	if len(wanted) == 0 {
		return len(d.AuthorName) > 0
	}
	for _, name := range d.AuthorName {
		name = strings.ToLower(name)
		for _, want := range wanted {
			if strings.Contains(name, want) {
				return true
			}
		}
	}
	return false
}

// splitAuthors lowercases a comma separated author list, dropping empty names.
func splitAuthors(author string) []string {
	var names []string
	for _, part := range strings.Split(author, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// SynthesizeDescription builds a description from record fields for books
// without one: "Title. Written by A, B. Subjects: s1, s2."
func SynthesizeDescription(rec domain.BookRecord) string {
	var b strings.Builder
	b.WriteString(rec.Title)
	b.WriteString(".")

	if len(rec.Authors) > 0 {
		b.WriteString(" Written by ")
		b.WriteString(strings.Join(rec.Authors, ", "))
		b.WriteString(".")
	}

	if len(rec.Subjects) > 0 {
		subjects := rec.Subjects
		if len(subjects) > 5 {
			subjects = subjects[:5]
		}
		b.WriteString(" Subjects: ")
		b.WriteString(strings.Join(subjects, ", "))
		b.WriteString(".")
	}

	return b.String()
}
