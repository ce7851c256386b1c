// Package events publishes pipeline run summaries to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/observability"
)

// Publisher publishes a run summary once a run finishes.
type Publisher interface {
	Publish(ctx context.Context, summary domain.RunSummary) error
	Close() error
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic for run events.
	Topic string
	// BatchTimeout bounds how long the writer buffers a message.
	BatchTimeout time.Duration
	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per run, keyed by run id.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *KafkaPublisher {
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(writer, cfg.Topic, logger, metrics)
}

func newKafkaPublisher(writer messageWriter, topic string, logger zerolog.Logger, metrics *observability.Metrics) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		logger:  logger.With().Str("component", "run_events").Str("topic", topic).Logger(),
		metrics: metrics,
	}
}

// Publish wraps summary in a domain.RunEvent and writes it.
func (p *KafkaPublisher) Publish(ctx context.Context, summary domain.RunSummary) (err error) {
	defer func() { p.metrics.RecordEventPublished(err) }()

	event, err := domain.NewRunEvent(summary)
	if err != nil {
		return fmt.Errorf("building run event: %w", err)
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding run event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(summary.RunID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing run event to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("run_id", summary.RunID).
		Str("event_type", event.EventType).
		Msg("run event published")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events. It is used when Kafka is disabled.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

// Publish does nothing.
func (NoopPublisher) Publish(context.Context, domain.RunSummary) error { return nil }

// Close does nothing.
func (NoopPublisher) Close() error { return nil }
