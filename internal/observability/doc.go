// Package observability provides logging and metrics support for the book
// recommendation service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for recommendations, enrichment, ranking and sources
//   - Context helpers for propagating request and session identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("session_id", sessionID).Msg("recommendation served")
//
// Add request context to a logger:
//
//	logger = observability.WithRequestContext(logger, requestID, sessionID)
//
// # Metrics
//
//	metrics := observability.NewMetrics("book_recommendation")
//	metrics.RecordRecommendationStarted()
//	metrics.RecordEnrichmentFailure("availability")
//
// # Standard Fields
//
//   - request_id: HTTP request identifier
//   - session_id: Chat session identifier
//   - source: Upstream source (openlibrary, kcls, llm)
//   - title, author: Candidate book being processed
//   - component: Emitting component
//
// All components are safe for concurrent use from multiple goroutines.
package observability
