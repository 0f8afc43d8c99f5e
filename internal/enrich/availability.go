package enrich

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/availability"
	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/resilience"
)

// AvailabilityEnricher checks library availability through a catalog checker.
type AvailabilityEnricher struct {
	checker    availability.Checker
	catalogURL string
	breakers   *resilience.BreakerRegistry
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewAvailabilityEnricher creates an AvailabilityEnricher. catalogURL is the
// base of fallback search links and defaults to the KCLS catalog.
func NewAvailabilityEnricher(checker availability.Checker, catalogURL string, breakers *resilience.BreakerRegistry, logger zerolog.Logger, metrics *observability.Metrics) *AvailabilityEnricher {
	if catalogURL == "" {
		catalogURL = availability.DefaultCatalogURL
	}
	return &AvailabilityEnricher{
		checker:    checker,
		catalogURL: catalogURL,
		breakers:   breakers,
		logger:     logger.With().Str("component", "enrich").Str("enricher", EnricherAvailability).Logger(),
		metrics:    metrics,
	}
}

// Enrich never fails. When the catalog cannot be consulted the book is
// assumed to exist, reported unavailable, and linked to a generic search.
func (e *AvailabilityEnricher) Enrich(ctx context.Context, book domain.CandidateBook, language string) domain.Availability {
	av, err := resilience.Execute(e.breakers, resilience.BreakerKCLS, func() (domain.Availability, error) {
		return e.checker.Check(ctx, book.Title, book.Author, book.MediaType)
	})
	if err != nil {
		logger := observability.WithBookContext(e.logger, book.Title, book.Author)
		logger.Warn().Err(err).Msg("availability check failed")
		if e.metrics != nil {
			e.metrics.RecordEnrichmentFailure(EnricherAvailability)
		}
		return domain.Availability{
			Exists:      true,
			CatalogLink: availability.SearchLinkAt(e.catalogURL, book.Title, book.Author, language),
		}
	}

	if av.CatalogLink == "" {
		av.CatalogLink = availability.SearchLinkAt(e.catalogURL, book.Title, book.Author, language)
	}
	return av
}
