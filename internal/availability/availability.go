// Package availability checks whether candidate books are held by the public
// library catalog and builds catalog links for them.
package availability

import (
	"context"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// DefaultCatalogURL is the KCLS BiblioCommons catalog.
const DefaultCatalogURL = "https://kcls.bibliocommons.com"

// Checker reports catalog availability for one title in one format.
//
// A non-nil error means the catalog could not be consulted; callers decide
// which defaults to substitute.
type Checker interface {
	Check(ctx context.Context, title, author string, media domain.MediaType) (domain.Availability, error)
}

// SearchLink builds a generic catalog search link on the default catalog.
func SearchLink(title, author, language string) string {
	return SearchLinkAt(DefaultCatalogURL, title, author, language)
}

// SearchLinkAt builds a generic "smart" search link for title and author on the
// catalog at baseURL. A non-english language is appended capitalised.
func SearchLinkAt(baseURL, title, author, language string) string {
	parts := []string{strings.TrimSpace(title), strings.TrimSpace(author)}
	if lang := strings.ToLower(strings.TrimSpace(language)); lang != "" && lang != "english" {
		parts = append(parts, Capitalize(lang))
	}

	q := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	return strings.TrimRight(baseURL, "/") + "/v2/search?query=" + escapeQuery(q) + "&searchType=smart"
}

// Capitalize upper-cases the first letter of s and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// escapeQuery percent-encodes s with spaces as %20.
func escapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
