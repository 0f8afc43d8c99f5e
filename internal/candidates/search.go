package candidates

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/query"
	"github.com/helixir/book-recommendation-service/internal/resilience"
)

// DefaultFetchLimit is how many search results are requested before ranking
// truncates the list to the requested count.
const DefaultFetchLimit = 30

// Searcher is the keyword search of a bibliographic catalog.
type Searcher interface {
	Search(ctx context.Context, terms, languageCode string, limit int) ([]domain.BookRecord, error)
}

// SearchDeps configures a SearchSource.
type SearchDeps struct {
	Searcher   Searcher
	Parser     *query.Parser
	FetchLimit int
	Breakers   *resilience.BreakerRegistry
}

// SearchSource takes candidates from a catalog keyword search.
type SearchSource struct {
	searcher   Searcher
	parser     *query.Parser
	fetchLimit int
	breakers   *resilience.BreakerRegistry
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewSearchSource creates a SearchSource. A nil parser uses the default tables.
func NewSearchSource(deps SearchDeps, logger zerolog.Logger, metrics *observability.Metrics) *SearchSource {
	parser := deps.Parser
	if parser == nil {
		parser = query.NewParser(query.DefaultTables())
	}
	limit := deps.FetchLimit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	return &SearchSource{
		searcher:   deps.Searcher,
		parser:     parser,
		fetchLimit: limit,
		breakers:   deps.Breakers,
		logger: logger.With().
			Str("component", "candidates").
			Str("strategy", StrategySearch).
			Logger(),
		metrics: metrics,
	}
}

// Name returns the strategy name.
func (s *SearchSource) Name() string {
	return StrategySearch
}

// Fetch searches the parsed query. The prompt is not used.
func (s *SearchSource) Fetch(ctx context.Context, _ string, q domain.ParsedQuery) ([]domain.CandidateBook, error) {
	return s.FetchByTerms(ctx, q)
}

// FetchByText parses prompt and searches its terms.
func (s *SearchSource) FetchByText(ctx context.Context, prompt string, maxCount int) ([]domain.CandidateBook, error) {
	q := s.parser.Parse(prompt)
	if maxCount > 0 {
		q.ResultCount = maxCount
	}
	return s.FetchByTerms(ctx, q)
}

// FetchByTerms searches the catalog for the query terms in the query language.
func (s *SearchSource) FetchByTerms(ctx context.Context, q domain.ParsedQuery) ([]domain.CandidateBook, error) {
	if len(q.Terms) == 0 {
		s.logger.Debug().Msg("no search terms, skipping catalog search")
		return finish(StrategySearch, nil, s.metrics), nil
	}

	limit := max(s.fetchLimit, q.ResultCount)
	lang := s.parser.Tables().LanguageCode(q.Language)

	records, err := resilience.Execute(s.breakers, resilience.BreakerOpenLibrary, func() ([]domain.BookRecord, error) {
		return s.searcher.Search(ctx, q.SearchText(), lang, limit)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("terms", q.SearchText()).Msg("catalog search failed")
		return finish(StrategySearch, nil, s.metrics), nil
	}

	books := make([]domain.CandidateBook, 0, len(records))
	for _, r := range records {
		books = append(books, domain.CandidateBook{
			Title:     r.Title,
			Author:    strings.Join(r.Authors, ", "),
			MediaType: domain.MediaTypeBook,
		})
	}
	return finish(StrategySearch, books, s.metrics), nil
}
