// Package app assembles the recommendation pipeline and its collaborators
// from configuration. Both the HTTP service and the CLI build on it.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/availability/kcls"
	"github.com/helixir/book-recommendation-service/internal/booksources/openlibrary"
	"github.com/helixir/book-recommendation-service/internal/candidates"
	"github.com/helixir/book-recommendation-service/internal/config"
	"github.com/helixir/book-recommendation-service/internal/enrich"
	"github.com/helixir/book-recommendation-service/internal/events"
	"github.com/helixir/book-recommendation-service/internal/llm"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/pipeline"
	"github.com/helixir/book-recommendation-service/internal/presenter"
	"github.com/helixir/book-recommendation-service/internal/query"
	"github.com/helixir/book-recommendation-service/internal/ranking"
	"github.com/helixir/book-recommendation-service/internal/resilience"
	"github.com/helixir/book-recommendation-service/internal/session"
)

// App holds the wired components.
type App struct {
	Parser    *query.Parser
	Pipeline  *pipeline.Pipeline
	Presenter *presenter.Presenter
	Sessions  *session.MemoryStore
	Breakers  *resilience.BreakerRegistry
	Publisher events.Publisher
}

// New wires every component described by cfg. metrics may be nil.
func New(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) (*App, error) {
	breakers := resilience.NewBreakerRegistryWithConfigs(cfg.Breakers, logger, metrics)
	parser := query.NewParser(cfg.Query.Tables())

	factoryCfg := cfg.LLM.Factory(metrics)

	var generator llm.CandidateGenerator
	if cfg.Candidates.Strategy == candidates.StrategyLLM {
		g, err := llm.NewCandidateGenerator(factoryCfg)
		if err != nil {
			return nil, fmt.Errorf("create candidate generator: %w", err)
		}
		generator = g
	}

	// Semantic scoring degrades to zero without an embedder.
	var embedder ranking.Embedder
	if e, err := llm.NewEmbedder(factoryCfg); err != nil {
		logger.Warn().Err(err).Msg("embeddings disabled, ranking will be degraded")
	} else {
		embedder = e
	}

	openLibrary := openlibrary.New(cfg.OpenLibraryConfig(), metrics)
	catalog := kcls.New(cfg.KCLSConfig(), metrics)

	source, err := candidates.New(cfg.Candidates.Strategy, candidates.Deps{
		Generator: candidates.GeneratorDeps{Generator: generator, Breakers: breakers},
		Search: candidates.SearchDeps{
			Searcher:   openLibrary,
			Parser:     parser,
			FetchLimit: cfg.Candidates.InitialFetchLimit,
			Breakers:   breakers,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create candidate source: %w", err)
	}

	fanout := enrich.NewFanout(
		enrich.NewMetadataEnricher(openLibrary, breakers, logger, metrics),
		enrich.NewAvailabilityEnricher(catalog, cfg.KCLS.BaseURL, breakers, logger, metrics),
		cfg.Enrich,
		logger,
	)

	publisher := events.NewPublisher(cfg.Kafka, logger, metrics)

	p := pipeline.New(pipeline.Deps{
		Parser:    parser,
		Source:    source,
		Enricher:  fanout,
		Ranker:    ranking.NewRanker(embedder, breakers, logger, metrics),
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
	}, cfg.Ranking)

	return &App{
		Parser:    parser,
		Pipeline:  p,
		Presenter: presenter.New(),
		Sessions:  session.NewMemoryStore(cfg.Session),
		Breakers:  breakers,
		Publisher: publisher,
	}, nil
}

// Close releases the event publisher.
func (a *App) Close() error {
	if err := a.Publisher.Close(); err != nil {
		return fmt.Errorf("close event publisher: %w", err)
	}
	return nil
}
