package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/config"
	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// Producer is the subset of *kgo.Client the sink needs
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Sink publishes events to a Kafka topic, one record per event, keyed by
// session so a session's events land on one partition in capture order.
type Sink struct {
	producer Producer
	topic    string
	log      *zap.Logger
}

// New connects a franz-go client to the configured brokers
func New(cfg config.Kafka, log *zap.Logger) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	log.Info("Kafka sink created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))

	return NewWithProducer(client, cfg.Topic, log), nil
}

// NewWithProducer creates a sink over an existing producer
func NewWithProducer(producer Producer, topic string, log *zap.Logger) *Sink {
	return &Sink{producer: producer, topic: topic, log: log}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Deliver(ctx context.Context, events []domain.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, event := range events {
		value, err := domain.MarshalEvent(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		key := event.SessionID
		if key == "" {
			key = event.UserID
		}

		records = append(records, &kgo.Record{
			Topic:     s.topic,
			Key:       []byte(key),
			Value:     value,
			Timestamp: event.Timestamp,
			Headers:   []kgo.RecordHeader{{Key: "event_name", Value: []byte(event.Name)}},
		})
	}

	if err := s.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", s.topic, err)
	}

	s.log.Debug("Produced events to Kafka", zap.Int("count", len(records)))
	return nil
}

// Close flushes and closes the client
func (s *Sink) Close() error {
	s.producer.Close()
	return nil
}
