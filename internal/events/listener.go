package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// Handler processes one consumed event.
type Handler func(ctx context.Context, event domain.RecommendationServedEvent) error

// messageReader is the subset of *kafka.Reader used by Listener.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Listener consumes recommendation events from Kafka.
type Listener struct {
	reader  messageReader
	handler Handler
	logger  zerolog.Logger
}

// NewListener creates a Listener reading cfg.Topic as consumer group cfg.GroupID.
func NewListener(cfg Config, handler Handler, logger zerolog.Logger) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newListener(reader, handler, logger)
}

func newListener(reader messageReader, handler Handler, logger zerolog.Logger) *Listener {
	return &Listener{
		reader:  reader,
		handler: handler,
		logger:  logger.With().Str("component", "event_listener").Logger(),
	}
}

// Run reads until ctx is cancelled. Undecodable messages, other event types
// and handler errors are logged and skipped.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting event listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("event listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received event")

		var event domain.RecommendationServedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to unmarshal event")
			continue
		}
		if event.EventType != domain.EventTypeRecommendationServed {
			l.logger.Debug().Str("event_type", event.EventType).Msg("skipping event")
			continue
		}

		if err := l.handler(ctx, event); err != nil {
			l.logger.Error().Err(err).
				Str("event_id", event.EventID).
				Str("session_id", event.SessionID).
				Msg("failed to handle event")
		}
	}
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing event listener")
	return l.reader.Close()
}
