// Package query turns a free-text book request into a structured ParsedQuery.
package query

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// Parser parses messages against a fixed set of tables.
type Parser struct {
	tables Tables
}

// NewParser creates a Parser bound to the given tables.
func NewParser(tables Tables) *Parser {
	return &Parser{tables: tables}
}

// Tables returns the tables the parser was built with.
func (p *Parser) Tables() Tables {
	return p.tables
}

// Parse parses raw with the parser's tables.
func (p *Parser) Parse(raw string) domain.ParsedQuery {
	return Parse(raw, p.tables)
}

// Parse extracts search terms, language, recency target and result count from raw.
// It never fails: unrecognized input yields the table defaults.
func Parse(raw string, t Tables) domain.ParsedQuery {
	q := domain.ParsedQuery{
		Terms:       []string{},
		Language:    t.DefaultLanguage,
		Recency:     t.DefaultRecency,
		ResultCount: t.DefaultCount,
	}

	tokens := tokenize(raw)
	excluded := make(map[int]struct{})

	for i, tok := range tokens {
		if _, ok := t.Languages[tok]; ok {
			q.Language = tok
			excluded[i] = struct{}{}
			continue
		}

		if target, ok := t.Recency[tok]; ok {
			q.Recency = target
			excluded[i] = struct{}{}
			continue
		}

		if _, ok := t.CountWords[tok]; ok {
			if n, idx, found := neighbourCount(tokens, i); found {
				q.ResultCount = t.clamp(n)
				excluded[i] = struct{}{}
				excluded[idx] = struct{}{}
			}
		}
	}

	for i, tok := range tokens {
		if _, skip := excluded[i]; skip {
			continue
		}
		if _, stop := t.StopWords[tok]; stop {
			continue
		}
		q.Terms = append(q.Terms, tok)
	}

	return q
}

// neighbourCount looks for a numeric token next to position i, preferring the
// previous one.
func neighbourCount(tokens []string, i int) (int, int, bool) {
	for _, idx := range []int{i - 1, i + 1} {
		if idx < 0 || idx >= len(tokens) || !isNumeric(tokens[idx]) {
			continue
		}
		n, err := strconv.Atoi(tokens[idx])
		if err != nil {
			// Overflowing digit runs are still a count request; treat them as huge.
			n = int(^uint(0) >> 1)
		}
		return n, idx, true
	}
	return 0, 0, false
}

func tokenize(raw string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r), r == '\'':
			return r
		default:
			return -1
		}
	}, strings.ToLower(raw))

	return strings.Fields(cleaned)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
