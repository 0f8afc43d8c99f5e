package candidates

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/llm"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/resilience"
)

// GeneratorDeps configures an LLMSource.
type GeneratorDeps struct {
	Generator llm.CandidateGenerator
	Breakers  *resilience.BreakerRegistry
}

// LLMSource asks a language model for candidates.
type LLMSource struct {
	generator llm.CandidateGenerator
	breakers  *resilience.BreakerRegistry
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewLLMSource creates an LLMSource.
func NewLLMSource(deps GeneratorDeps, logger zerolog.Logger, metrics *observability.Metrics) *LLMSource {
	return &LLMSource{
		generator: deps.Generator,
		breakers:  deps.Breakers,
		logger: logger.With().
			Str("component", "candidates").
			Str("strategy", StrategyLLM).
			Str("provider", deps.Generator.Provider()).
			Logger(),
		metrics: metrics,
	}
}

// Name returns the strategy name.
func (s *LLMSource) Name() string {
	return StrategyLLM
}

// Fetch sends the conversation prompt, falling back to the query terms when
// the prompt is blank.
func (s *LLMSource) Fetch(ctx context.Context, prompt string, q domain.ParsedQuery) ([]domain.CandidateBook, error) {
	if strings.TrimSpace(prompt) == "" {
		return s.FetchByTerms(ctx, q)
	}
	return s.FetchByText(ctx, prompt, q.ResultCount)
}

// FetchByText sends prompt to the model. A malformed answer is retried once.
// Any remaining failure yields an empty list.
func (s *LLMSource) FetchByText(ctx context.Context, prompt string, maxCount int) ([]domain.CandidateBook, error) {
	const attempts = 2

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		books, err := resilience.Execute(s.breakers, resilience.BreakerLLM, func() ([]domain.CandidateBook, error) {
			return s.generator.Generate(ctx, prompt, maxCount)
		})
		if err == nil {
			return finish(StrategyLLM, books, s.metrics), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if !errors.Is(err, domain.ErrMalformedResponse) {
			break
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("model returned a malformed candidate list")
	}

	s.logger.Warn().Err(lastErr).Msg("no candidates from model")
	return finish(StrategyLLM, nil, s.metrics), nil
}

// FetchByTerms joins the parsed terms into a prompt.
func (s *LLMSource) FetchByTerms(ctx context.Context, q domain.ParsedQuery) ([]domain.CandidateBook, error) {
	if len(q.Terms) == 0 {
		return []domain.CandidateBook{}, nil
	}
	return s.FetchByText(ctx, q.SearchText(), q.ResultCount)
}
