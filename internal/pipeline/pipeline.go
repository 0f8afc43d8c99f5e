// Package pipeline runs one recommendation request end to end: parse, fetch
// candidates, enrich, filter, rank and truncate.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/candidates"
	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/events"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/query"
	"github.com/helixir/book-recommendation-service/internal/ranking"
)

// publishTimeout bounds the event publish after a response is built.
const publishTimeout = 2 * time.Second

// Enricher attaches metadata and availability to candidates.
type Enricher interface {
	Run(ctx context.Context, books []domain.CandidateBook, language string) ([]domain.EnrichedBook, bool, error)
}

// Ranker orders enriched books.
type Ranker interface {
	Rank(ctx context.Context, books []domain.EnrichedBook, queryText string, recency domain.RecencyTarget, popularityWeight float64) (ranking.Result, error)
}

// Config holds the ranking knobs applied by the pipeline.
type Config struct {
	PopularityWeight     float64       `mapstructure:"popularity_weight"`
	Floor                ranking.Floor `mapstructure:",squash"`
	ApplyPopularityFloor bool          `mapstructure:"apply_popularity_floor"`
}

// DefaultConfig returns the default ranking knobs.
func DefaultConfig() Config {
	return Config{
		PopularityWeight: 0.2,
		Floor:            ranking.DefaultFloor(),
	}
}

// Request is one user turn.
type Request struct {
	// Message is the user's latest message. It is parsed for filters.
	Message string

	// Prompt is what the language model sees, usually the message with
	// conversation context. Empty means Message.
	Prompt string

	SessionID string
}

// Result is the outcome of a request.
type Result struct {
	Query    domain.ParsedQuery
	Books    []domain.RankedBook
	Degraded bool
	Source   string
}

// Pipeline wires the recommendation stages together.
type Pipeline struct {
	parser    *query.Parser
	source    candidates.Source
	enricher  Enricher
	ranker    Ranker
	publisher events.Publisher
	config    Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// Deps are the stages of a Pipeline. Publisher and Metrics are optional.
type Deps struct {
	Parser    *query.Parser
	Source    candidates.Source
	Enricher  Enricher
	Ranker    Ranker
	Publisher events.Publisher
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
}

// New creates a Pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	parser := deps.Parser
	if parser == nil {
		parser = query.NewParser(query.DefaultTables())
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Pipeline{
		parser:    parser,
		source:    deps.Source,
		enricher:  deps.Enricher,
		ranker:    deps.Ranker,
		publisher: publisher,
		config:    cfg,
		logger:    deps.Logger.With().Str("component", "pipeline").Logger(),
		metrics:   deps.Metrics,
	}
}

// Recommend runs the request. Collaborator failures degrade the result rather
// than fail it; the only errors returned come from ctx.
func (p *Pipeline) Recommend(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.RecordRecommendationStarted()
	}

	logger := observability.WithRequestContext(p.logger,
		observability.RequestIDFromContext(ctx), req.SessionID)

	q := p.parser.Parse(req.Message)
	logger.Debug().
		Strs("terms", q.Terms).
		Str("language", q.Language).
		Int("count", q.ResultCount).
		Msg("query parsed")

	books, err := p.fetch(ctx, req, q)
	if err != nil {
		return nil, p.cancelled(logger, err)
	}

	enriched, degraded, err := p.enricher.Run(ctx, books, q.Language)
	if err != nil {
		return nil, p.cancelled(logger, err)
	}

	eligible := p.filter(enriched)

	queryText := strings.TrimSpace(req.Message)
	if queryText == "" {
		queryText = q.SearchText()
	}
	ranked, err := p.ranker.Rank(ctx, eligible, queryText, q.Recency, p.config.PopularityWeight)
	if err != nil {
		return nil, p.cancelled(logger, err)
	}
	degraded = degraded || ranked.Degraded

	out := ranked.Books
	if len(out) > q.ResultCount {
		out = out[:q.ResultCount]
	}

	result := &Result{
		Query:    q,
		Books:    out,
		Degraded: degraded,
		Source:   p.source.Name(),
	}

	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordRecommendationCompleted(result.Source, len(out), degraded, elapsed.Seconds())
	}
	if len(out) == 0 {
		logger.Info().Err(domain.ErrNoCandidates).Msg("no books to recommend")
	}
	logger.Info().
		Int("candidates", len(books)).
		Int("books", len(out)).
		Bool("degraded", degraded).
		Dur("duration", elapsed).
		Msg("recommendation served")

	p.publish(ctx, logger, req, result, elapsed)
	return result, nil
}

func (p *Pipeline) fetch(ctx context.Context, req Request, q domain.ParsedQuery) ([]domain.CandidateBook, error) {
	prompt := req.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = req.Message
	}
	return p.source.Fetch(ctx, prompt, q)
}

// filter drops books the catalog does not hold, then applies the popularity
// floor when enabled.
func (p *Pipeline) filter(books []domain.EnrichedBook) []domain.EnrichedBook {
	kept := make([]domain.EnrichedBook, 0, len(books))
	for _, b := range books {
		if b.Exists {
			kept = append(kept, b)
		}
	}
	if p.metrics != nil && len(kept) < len(books) {
		p.metrics.RecordCandidatesDropped("not_in_catalog", len(books)-len(kept))
	}

	if !p.config.ApplyPopularityFloor {
		return kept
	}
	popular := ranking.FilterPopular(kept, p.config.Floor)
	if p.metrics != nil && len(popular) < len(kept) {
		p.metrics.RecordCandidatesDropped("below_popularity_floor", len(kept)-len(popular))
	}
	return popular
}

func (p *Pipeline) publish(ctx context.Context, logger zerolog.Logger, req Request, result *Result, elapsed time.Duration) {
	event := domain.NewRecommendationServedEvent(req.SessionID, result.Source, result.Query, result.Books, result.Degraded).
		WithRequestID(observability.RequestIDFromContext(ctx)).
		WithDuration(elapsed)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.publisher.Publish(pubCtx, *event); err != nil {
		logger.Warn().Err(err).Str("event_id", event.EventID).Msg("failed to publish event")
	}
}

func (p *Pipeline) cancelled(logger zerolog.Logger, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info().Err(err).Msg("recommendation cancelled")
	} else {
		logger.Error().Err(err).Msg("recommendation failed")
	}
	return err
}
