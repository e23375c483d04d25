package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tradeduel/tradeduel/internal/domain/event"
)

// PublisherOption configures a Publisher.
type PublisherOption func(*PublisherConfig)

// PublisherConfig holds producer settings.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

// WithBrokers sets the bootstrap brokers.
func WithBrokers(brokers ...string) PublisherOption {
	return func(c *PublisherConfig) {
		c.Brokers = brokers
	}
}

// WithTopic sets the destination topic.
func WithTopic(topic string) PublisherOption {
	return func(c *PublisherConfig) {
		c.Topic = topic
	}
}

// WithCompression sets gzip, snappy, lz4 or zstd.
func WithCompression(codec string) PublisherOption {
	return func(c *PublisherConfig) {
		c.Compression = codec
	}
}

// WithWriteTimeout bounds a single publish.
func WithWriteTimeout(d time.Duration) PublisherOption {
	return func(c *PublisherConfig) {
		c.WriteTimeout = d
	}
}

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Recorder receives publish outcomes.
type Recorder interface {
	RecordPublish(publisher, result string)
}

// Publisher sends lifecycle events to Kafka keyed by challenge id, so all
// events of one challenge land on the same partition in order.
type Publisher struct {
	writer  messageWriter
	topic   string
	metrics Recorder
}

// NewPublisher creates a Kafka event publisher.
func NewPublisher(metrics Recorder, opts ...PublisherOption) (*Publisher, error) {
	cfg := &PublisherConfig{
		Topic:        "tradeduel.challenge-events",
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newPublisher(writer, cfg.Topic, metrics), nil
}

func newPublisher(w messageWriter, topic string, metrics Recorder) *Publisher {
	return &Publisher{writer: w, topic: topic, metrics: metrics}
}

// Publish implements event.Publisher.
func (p *Publisher) Publish(ctx context.Context, evt *event.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.ChallengeID.String()),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
			{Key: "event-id", Value: []byte(evt.EventID.String())},
		},
	}
	err = p.writer.WriteMessages(ctx, msg)
	p.record(err)
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) record(err error) {
	if p.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.metrics.RecordPublish("kafka", result)
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}

var _ event.Publisher = (*Publisher)(nil)
