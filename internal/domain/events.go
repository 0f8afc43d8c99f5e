package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants for published domain events.
const (
	EventTypeRecommendationServed = "recommendation.served"
)

// RecommendationServedEvent is published after a recommendation response has
// been built, whether or not it contains books.
type RecommendationServedEvent struct {
	EventID      string        `json:"event_id"`
	EventVersion int           `json:"event_version"`
	EventType    string        `json:"event_type"`
	SessionID    string        `json:"session_id"`
	RequestID    string        `json:"request_id,omitempty"`
	Query        ParsedQuery   `json:"query"`
	Source       string        `json:"source"`
	Books        []ServedBook  `json:"books"`
	Degraded     bool          `json:"degraded"`
	Duration     time.Duration `json:"duration_ns"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ServedBook is the compact form of a ranked book carried by events.
type ServedBook struct {
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	MediaType MediaType `json:"media_type"`
	Score     float64   `json:"score"`
	Available bool      `json:"available"`
}

// NewRecommendationServedEvent creates an event for the given ranked books.
func NewRecommendationServedEvent(sessionID, source string, q ParsedQuery, books []RankedBook, degraded bool) *RecommendationServedEvent {
	served := make([]ServedBook, 0, len(books))
	for _, b := range books {
		served = append(served, ServedBook{
			Title:     b.Title,
			Author:    b.Author,
			MediaType: b.MediaType,
			Score:     b.Score,
			Available: b.Available,
		})
	}

	return &RecommendationServedEvent{
		EventID:      uuid.New().String(),
		EventVersion: 1,
		EventType:    EventTypeRecommendationServed,
		SessionID:    sessionID,
		Query:        q,
		Source:       source,
		Books:        served,
		Degraded:     degraded,
		CreatedAt:    time.Now(),
	}
}

// WithRequestID sets the request id that produced the event.
func (e *RecommendationServedEvent) WithRequestID(requestID string) *RecommendationServedEvent {
	e.RequestID = requestID
	return e
}

// WithDuration sets how long the recommendation took.
func (e *RecommendationServedEvent) WithDuration(d time.Duration) *RecommendationServedEvent {
	e.Duration = d
	return e
}
