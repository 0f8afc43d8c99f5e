// Package candidates obtains the raw book suggestions for a request, either
// from a language model or from the OpenLibrary keyword search.
package candidates

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

// Strategy names accepted by New.
const (
	StrategyLLM    = "llm"
	StrategySearch = "search"
)

// Source is a strategy for obtaining candidate books. Implementations never
// return empty titles or duplicate (title, author) pairs, and report upstream
// failures as an empty list. Only context errors are returned.
type Source interface {
	// Fetch obtains candidates for one request the way the strategy prefers:
	// from the conversation prompt or from the parsed query.
	Fetch(ctx context.Context, prompt string, q domain.ParsedQuery) ([]domain.CandidateBook, error)

	// FetchByText derives candidates from the free-text prompt.
	FetchByText(ctx context.Context, prompt string, maxCount int) ([]domain.CandidateBook, error)

	// FetchByTerms derives candidates from an already parsed query.
	FetchByTerms(ctx context.Context, q domain.ParsedQuery) ([]domain.CandidateBook, error)

	// Name returns the strategy name.
	Name() string
}

// Sanitize trims titles and authors, drops books without a title, defaults
// the media type and removes repeated (title, author) pairs keeping the first.
func Sanitize(books []domain.CandidateBook) []domain.CandidateBook {
	out, _, _ := sanitize(books)
	return out
}

func sanitize(books []domain.CandidateBook) (out []domain.CandidateBook, empty, duplicates int) {
	out = make([]domain.CandidateBook, 0, len(books))
	seen := make(map[string]struct{}, len(books))
	for _, b := range books {
		b.Title = strings.TrimSpace(b.Title)
		b.Author = strings.TrimSpace(b.Author)
		if b.Title == "" {
			empty++
			continue
		}
		key := domain.BookKey(b.Title, b.Author)
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		if b.MediaType == "" {
			b.MediaType = domain.MediaTypeBook
		}
		out = append(out, b)
	}
	return out, empty, duplicates
}

// finish sanitizes books and records how many were produced and dropped.
func finish(source string, books []domain.CandidateBook, metrics *observability.Metrics) []domain.CandidateBook {
	out, empty, duplicates := sanitize(books)
	if metrics != nil {
		if empty > 0 {
			metrics.RecordCandidatesDropped("empty_title", empty)
		}
		if duplicates > 0 {
			metrics.RecordCandidatesDropped("duplicate", duplicates)
		}
		metrics.RecordCandidates(source, len(out))
	}
	return out
}

// Deps are the collaborators New may wire into a strategy.
type Deps struct {
	Generator GeneratorDeps
	Search    SearchDeps
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
}

// New returns the Source for strategy.
func New(strategy string, deps Deps) (Source, error) {
	switch strategy {
	case StrategyLLM:
		if deps.Generator.Generator == nil {
			return nil, fmt.Errorf("candidate strategy %q requires a generator", strategy)
		}
		return NewLLMSource(deps.Generator, deps.Logger, deps.Metrics), nil
	case StrategySearch:
		if deps.Search.Searcher == nil {
			return nil, fmt.Errorf("candidate strategy %q requires a searcher", strategy)
		}
		return NewSearchSource(deps.Search, deps.Logger, deps.Metrics), nil
	default:
		return nil, fmt.Errorf("unsupported candidate strategy: %q", strategy)
	}
}
