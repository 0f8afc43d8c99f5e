package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// Defaults for Fanout.
const (
	DefaultWorkers          = 8
	DefaultCandidateTimeout = 5 * time.Second
)

// MetadataSource produces the metadata partial of a candidate.
type MetadataSource interface {
	Enrich(ctx context.Context, book domain.CandidateBook) domain.Metadata
}

// AvailabilitySource produces the availability partial of a candidate.
type AvailabilitySource interface {
	Enrich(ctx context.Context, book domain.CandidateBook, language string) domain.Availability
}

// FanoutConfig bounds the enrichment fan-out.
type FanoutConfig struct {
	Workers          int           `mapstructure:"workers"`
	CandidateTimeout time.Duration `mapstructure:"candidate_timeout"`
}

// Fanout enriches many candidates concurrently.
type Fanout struct {
	metadata     MetadataSource
	availability AvailabilitySource
	workers      int
	timeout      time.Duration
	logger       zerolog.Logger
}

// NewFanout creates a Fanout. Zero config values take the defaults.
func NewFanout(metadata MetadataSource, availability AvailabilitySource, cfg FanoutConfig, logger zerolog.Logger) *Fanout {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.CandidateTimeout <= 0 {
		cfg.CandidateTimeout = DefaultCandidateTimeout
	}
	return &Fanout{
		metadata:     metadata,
		availability: availability,
		workers:      cfg.Workers,
		timeout:      cfg.CandidateTimeout,
		logger:       logger.With().Str("component", "enrich-fanout").Logger(),
	}
}

// Run enriches books with at most Workers candidates in flight. For each
// candidate both enrichers run concurrently under a shared timeout. Results
// keep the input order. degraded is true when any partial is unknown.
// Only cancellation of ctx is returned as an error.
func (f *Fanout) Run(ctx context.Context, books []domain.CandidateBook, language string) (enriched []domain.EnrichedBook, degraded bool, err error) {
	enriched = make([]domain.EnrichedBook, len(books))
	if len(books) == 0 {
		return enriched, false, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(f.workers)

	for i, book := range books {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			enriched[i] = f.enrichOne(ctx, book, language)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	for _, b := range enriched {
		if !b.Metadata.Known || !b.Availability.Known {
			degraded = true
			break
		}
	}

	f.logger.Debug().
		Int("candidates", len(books)).
		Bool("degraded", degraded).
		Msg("enrichment complete")

	return enriched, degraded, nil
}

func (f *Fanout) enrichOne(ctx context.Context, book domain.CandidateBook, language string) domain.EnrichedBook {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out := domain.EnrichedBook{CandidateBook: book}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Metadata = f.metadata.Enrich(ctx, book)
	}()
	go func() {
		defer wg.Done()
		out.Availability = f.availability.Enrich(ctx, book, language)
	}()
	wg.Wait()

	return out
}
