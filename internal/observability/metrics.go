package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the book recommendation service.
// Metrics are organized by subsystem: recommendations, candidates, enrichment,
// ranking, sources, LLM operations, circuit breakers and HTTP. All counters and
// histograms are registered via promauto with the default Prometheus registry.
type Metrics struct {
	// RecommendationsStarted counts recommendation requests entering the pipeline.
	RecommendationsStarted prometheus.Counter

	// RecommendationsCompleted counts requests that produced a response, labeled by candidate source.
	RecommendationsCompleted *prometheus.CounterVec

	// RecommendationsDegraded counts responses built with at least one unknown partial or no semantic scores.
	RecommendationsDegraded prometheus.Counter

	// RecommendationsEmpty counts responses with no books to show.
	RecommendationsEmpty prometheus.Counter

	// RecommendationDuration observes the end-to-end pipeline duration in seconds.
	RecommendationDuration prometheus.Histogram

	// CandidatesPerRequest observes how many candidates a source returned, labeled by source.
	CandidatesPerRequest *prometheus.HistogramVec

	// CandidatesDropped counts candidates removed before ranking, labeled by reason.
	CandidatesDropped *prometheus.CounterVec

	// EnrichmentFailures counts enrichers that fell back to unknown values, labeled by enricher.
	EnrichmentFailures *prometheus.CounterVec

	// RankingClamps counts blend coefficients clamped into [0,1], labeled by coefficient.
	RankingClamps *prometheus.CounterVec

	// RankingDegraded counts rankings that ran without semantic scores.
	RankingDegraded prometheus.Counter

	// SourceRequestsTotal counts HTTP requests to upstream APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed upstream requests, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes upstream request duration in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from upstream APIs, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec

	// BreakerStateChanges counts circuit breaker transitions, labeled by breaker, from and to state.
	BreakerStateChanges *prometheus.CounterVec

	// EventsPublished counts domain events handed to the publisher, labeled by event type and outcome.
	EventsPublished *prometheus.CounterVec

	// HTTPRequestsTotal counts inbound HTTP requests, labeled by route and status code.
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Recommendations
		RecommendationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_started_total",
			Help:      "Total number of recommendation requests started",
		}),
		RecommendationsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_completed_total",
			Help:      "Total number of recommendation requests completed",
		}, []string{"source"}),
		RecommendationsDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_degraded_total",
			Help:      "Total number of recommendations served in degraded mode",
		}),
		RecommendationsEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_empty_total",
			Help:      "Total number of recommendations with no books",
		}),
		RecommendationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommendation_duration_seconds",
			Help:      "Duration of recommendation requests in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),

		// Candidates
		CandidatesPerRequest: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_request",
			Help:      "Number of candidates returned per request",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 30, 50},
		}, []string{"source"}),
		CandidatesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_dropped_total",
			Help:      "Total number of candidates dropped before ranking",
		}, []string{"reason"}),

		// Enrichment and ranking
		EnrichmentFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_failures_total",
			Help:      "Total number of enrichments that fell back to unknown values",
		}, []string{"enricher"}),
		RankingClamps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_coefficient_clamps_total",
			Help:      "Total number of ranking coefficients clamped into range",
		}, []string{"coefficient"}),
		RankingDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_degraded_total",
			Help:      "Total number of rankings computed without semantic scores",
		}),

		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to upstream sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to upstream sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of upstream source requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate-limited responses from upstream sources",
		}, []string{"source"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM API requests",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM API requests",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM API requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),

		// Plumbing
		BreakerStateChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_state_changes_total",
			Help:      "Total number of circuit breaker state transitions",
		}, []string{"breaker", "from", "to"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of domain events handed to the publisher",
		}, []string{"event_type", "outcome"}),
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of inbound HTTP requests",
		}, []string{"route", "status"}),
	}
}

// RecordRecommendationStarted records that a recommendation request has started.
func (m *Metrics) RecordRecommendationStarted() {
	m.RecommendationsStarted.Inc()
}

// RecordRecommendationCompleted records a finished recommendation.
func (m *Metrics) RecordRecommendationCompleted(source string, bookCount int, degraded bool, durationSeconds float64) {
	m.RecommendationsCompleted.WithLabelValues(source).Inc()
	m.RecommendationDuration.Observe(durationSeconds)
	if degraded {
		m.RecommendationsDegraded.Inc()
	}
	if bookCount == 0 {
		m.RecommendationsEmpty.Inc()
	}
}

// RecordCandidates records the number of candidates a source produced.
func (m *Metrics) RecordCandidates(source string, count int) {
	m.CandidatesPerRequest.WithLabelValues(source).Observe(float64(count))
}

// RecordCandidatesDropped records candidates removed before ranking.
func (m *Metrics) RecordCandidatesDropped(reason string, count int) {
	m.CandidatesDropped.WithLabelValues(reason).Add(float64(count))
}

// RecordEnrichmentFailure records an enricher falling back to unknown values.
func (m *Metrics) RecordEnrichmentFailure(enricher string) {
	m.EnrichmentFailures.WithLabelValues(enricher).Inc()
}

// RecordRankingClamp records a ranking coefficient clamped into range.
func (m *Metrics) RecordRankingClamp(coefficient string) {
	m.RankingClamps.WithLabelValues(coefficient).Inc()
}

// RecordRankingDegraded records a ranking computed without semantic scores.
func (m *Metrics) RecordRankingDegraded() {
	m.RankingDegraded.Inc()
}

// RecordSourceRequest records a request to an upstream source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to an upstream source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}

// RecordBreakerStateChange records a circuit breaker transition.
func (m *Metrics) RecordBreakerStateChange(breaker, from, to string) {
	m.BreakerStateChanges.WithLabelValues(breaker, from, to).Inc()
}

// RecordEventPublished records a publish attempt and its outcome ("ok" or "error").
func (m *Metrics) RecordEventPublished(eventType, outcome string) {
	m.EventsPublished.WithLabelValues(eventType, outcome).Inc()
}

// RecordHTTPRequest records an inbound HTTP request.
func (m *Metrics) RecordHTTPRequest(route, status string) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}
