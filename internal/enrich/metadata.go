// Package enrich attaches bibliographic metadata and library availability to
// candidate books.
package enrich

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/booksources/openlibrary"
	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/resilience"
)

// Enricher names used in logs and metrics.
const (
	EnricherMetadata     = "metadata"
	EnricherAvailability = "availability"
)

// MetadataLookup is the bibliographic catalog used by MetadataEnricher.
type MetadataLookup interface {
	Lookup(ctx context.Context, title, author string) (*domain.BookRecord, error)
	Description(ctx context.Context, workKey string) (string, error)
}

// MetadataEnricher looks up ratings, cover, first publish year and a
// description for a candidate.
type MetadataEnricher struct {
	lookup   MetadataLookup
	breakers *resilience.BreakerRegistry
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewMetadataEnricher creates a MetadataEnricher. breakers and metrics are optional.
func NewMetadataEnricher(lookup MetadataLookup, breakers *resilience.BreakerRegistry, logger zerolog.Logger, metrics *observability.Metrics) *MetadataEnricher {
	return &MetadataEnricher{
		lookup:   lookup,
		breakers: breakers,
		logger:   logger.With().Str("component", "enrich").Str("enricher", EnricherMetadata).Logger(),
		metrics:  metrics,
	}
}

// Enrich never fails. When the catalog cannot be reached the result has
// Known=false and the title as description. A title the catalog does not hold
// is known but carries no ratings.
func (e *MetadataEnricher) Enrich(ctx context.Context, book domain.CandidateBook) domain.Metadata {
	rec, err := resilience.Execute(e.breakers, resilience.BreakerOpenLibrary, func() (*domain.BookRecord, error) {
		return e.lookup.Lookup(ctx, book.Title, book.Author)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Metadata{Description: book.Title, Known: true}
	}
	if err != nil {
		logger := observability.WithBookContext(e.logger, book.Title, book.Author)
		logger.Warn().Err(err).Msg("metadata lookup failed")
		if e.metrics != nil {
			e.metrics.RecordEnrichmentFailure(EnricherMetadata)
		}
		return Unknown(book)
	}

	return domain.Metadata{
		Description:      e.description(ctx, rec),
		RatingsAverage:   rec.RatingsAverage,
		RatingsCount:     rec.RatingsCount,
		CoverID:          rec.CoverID,
		FirstPublishYear: rec.FirstPublishYear,
		Known:            true,
	}
}

// description prefers the work's own description and falls back to one
// synthesized from the record.
func (e *MetadataEnricher) description(ctx context.Context, rec *domain.BookRecord) string {
	if rec.Key != "" {
		desc, err := resilience.Execute(e.breakers, resilience.BreakerOpenLibrary, func() (string, error) {
			return e.lookup.Description(ctx, rec.Key)
		})
		if err == nil && desc != "" {
			return desc
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			e.logger.Debug().Err(err).Str("work", rec.Key).Msg("work description unavailable")
		}
	}
	return openlibrary.SynthesizeDescription(*rec)
}

// Unknown is the metadata used when the catalog could not be consulted.
func Unknown(book domain.CandidateBook) domain.Metadata {
	return domain.Metadata{Description: book.Title}
}
