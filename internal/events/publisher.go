// Package events publishes recommendation events to Kafka and reads them back.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

const (
	// defaultServiceName is written to the source header of every message.
	defaultServiceName = "book-recommendation-service"

	headerEventType     = "event_type"
	headerSource        = "source"
	headerCorrelationID = "correlation_id"
	headerTraceID       = "trace_id"
)

// Publisher publishes recommendation events.
type Publisher interface {
	Publish(ctx context.Context, event domain.RecommendationServedEvent) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds the Kafka settings.
type Config struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	GroupID      string        `mapstructure:"group_id"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	ServiceName  string        `mapstructure:"service_name"`
}

// KafkaPublisher writes events as JSON keyed by session id, so one session's
// events stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	service string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewKafkaPublisher creates a KafkaPublisher writing to cfg.Topic.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}
	return newKafkaPublisher(writer, cfg, logger, metrics)
}

func newKafkaPublisher(writer messageWriter, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *KafkaPublisher {
	service := cfg.ServiceName
	if service == "" {
		service = defaultServiceName
	}
	return &KafkaPublisher{
		writer:  writer,
		topic:   cfg.Topic,
		service: service,
		logger:  logger.With().Str("component", "event_publisher").Str("topic", cfg.Topic).Logger(),
		metrics: metrics,
	}
}

// Publish writes event and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.RecommendationServedEvent) error {
	msg, err := p.message(ctx, event)
	if err != nil {
		p.record(event.EventType, "error")
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.record(event.EventType, "error")
		return fmt.Errorf("publish %s: %w", event.EventType, err)
	}

	p.record(event.EventType, "ok")
	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("session_id", event.SessionID).
		Int("books", len(event.Books)).
		Msg("event published")
	return nil
}

// message builds the Kafka message for event, carrying request tracing
// identifiers from ctx as headers.
func (p *KafkaPublisher) message(ctx context.Context, event domain.RecommendationServedEvent) (kafka.Message, error) {
	if event.EventType == "" {
		return kafka.Message{}, fmt.Errorf("event_type is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: headerEventType, Value: []byte(event.EventType)},
		{Key: headerSource, Value: []byte(p.service)},
	}
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		headers = append(headers, kafka.Header{Key: headerCorrelationID, Value: []byte(id)})
	}
	if traceID, _ := observability.TraceSpanFromContext(ctx); traceID != "" {
		headers = append(headers, kafka.Header{Key: headerTraceID, Value: []byte(traceID)})
	}

	return kafka.Message{
		Key:     []byte(event.SessionID),
		Value:   payload,
		Headers: headers,
		Time:    event.CreatedAt,
	}, nil
}

func (p *KafkaPublisher) record(eventType, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordEventPublished(eventType, outcome)
	}
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info().Msg("closing event publisher")
	return p.writer.Close()
}

// NoopPublisher discards events. It is used when Kafka is disabled.
type NoopPublisher struct{}

// Publish discards event.
func (NoopPublisher) Publish(context.Context, domain.RecommendationServedEvent) error { return nil }

// Close does nothing.
func (NoopPublisher) Close() error { return nil }

// NewPublisher returns a KafkaPublisher when cfg.Enabled, and a NoopPublisher otherwise.
func NewPublisher(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) Publisher {
	if !cfg.Enabled {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg, logger, metrics)
}
