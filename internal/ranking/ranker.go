// Package ranking orders enriched books by a blend of semantic relevance,
// popularity and publication-year proximity.
package ranking

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/resilience"
)

// Embedder embeds texts into vectors, one per input in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Result is the ranked list and whether semantic scoring was unavailable.
type Result struct {
	Books    []domain.RankedBook
	Degraded bool
}

// Ranker scores and orders enriched books.
type Ranker struct {
	embedder Embedder
	breakers *resilience.BreakerRegistry
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewRanker creates a Ranker. embedder may be nil, in which case every call
// runs in degraded mode. breakers and metrics are optional.
func NewRanker(embedder Embedder, breakers *resilience.BreakerRegistry, logger zerolog.Logger, metrics *observability.Metrics) *Ranker {
	return &Ranker{
		embedder: embedder,
		breakers: breakers,
		logger:   logger.With().Str("component", "ranker").Logger(),
		metrics:  metrics,
	}
}

// Rank scores books against queryText and returns them sorted by descending
// score, stable on ties. Embedding failures degrade to popularity and recency
// scoring and are never returned; only context cancellation is.
func (r *Ranker) Rank(ctx context.Context, books []domain.EnrichedBook, queryText string, recency domain.RecencyTarget, popularityWeight float64) (Result, error) {
	if len(books) == 0 {
		return Result{Books: []domain.RankedBook{}}, nil
	}

	if _, clamped := Blend(popularityWeight, recency.Weight); len(clamped) > 0 {
		r.logger.Warn().
			Float64("popularity_weight", popularityWeight).
			Float64("recency_weight", recency.Weight).
			Strs("clamped", clamped).
			Msg("ranking coefficients clamped to [0,1]")
		if r.metrics != nil {
			for _, name := range clamped {
				r.metrics.RecordRankingClamp(name)
			}
		}
	}

	semantic, err := r.semanticScores(ctx, books, queryText)
	degraded := err != nil
	if degraded {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		r.logger.Warn().Err(err).Int("books", len(books)).Msg("semantic scoring unavailable, ranking without it")
		if r.metrics != nil {
			r.metrics.RecordRankingDegraded()
		}
		semantic = make([]float64, len(books))
	}

	ranked := make([]domain.RankedBook, len(books))
	for i, b := range books {
		ranked[i] = domain.RankedBook{
			EnrichedBook: b,
			Score:        Score(b, semantic[i], recency, popularityWeight),
			Semantic:     semantic[i],
			Popularity:   Popularity(b.RatingsAverage, b.RatingsCount),
			RecencyScore: Recency(b.FirstPublishYear, recency),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return Result{Books: ranked, Degraded: degraded}, nil
}

// semanticScores embeds the query and every book in one batch, query first.
func (r *Ranker) semanticScores(ctx context.Context, books []domain.EnrichedBook, queryText string) ([]float64, error) {
	if r.embedder == nil {
		return nil, domain.ErrServiceUnavailable
	}

	texts := make([]string, 0, len(books)+1)
	texts = append(texts, queryText)
	for _, b := range books {
		texts = append(texts, b.RankingText())
	}

	vectors, err := resilience.Execute(r.breakers, resilience.BreakerEmbedder, func() ([][]float64, error) {
		return r.embedder.Embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, domain.NewMalformedResponseError("embedder", "embedding count does not match input count")
	}

	scores := make([]float64, len(books))
	for i := range books {
		scores[i] = Cosine(vectors[0], vectors[i+1])
	}
	return scores, nil
}
