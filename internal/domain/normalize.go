package domain

import (
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters (spaces, tabs, newlines).
var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeKeyword normalizes a string by:
// - Converting to lowercase
// - Trimming leading/trailing whitespace
// - Collapsing multiple whitespace characters into a single space
func NormalizeKeyword(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	return whitespaceRegex.ReplaceAllString(s, " ")
}

// BookKey returns the identity used to deduplicate candidates within one
// response: the normalized title and author joined by a separator that cannot
// appear in normalized text.
func BookKey(title, author string) string {
	return NormalizeKeyword(title) + "\x00" + NormalizeKeyword(author)
}

// AuthorLastName returns the last whitespace-separated token of the first
// listed author, lowercased. Catalog searches match contributors on it.
func AuthorLastName(author string) string {
	first, _, _ := strings.Cut(author, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}
