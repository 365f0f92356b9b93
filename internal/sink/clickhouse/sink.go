package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// Sink delivers event batches into a ClickHouse table. Redelivered events
// collapse through ReplacingMergeTree on event_id; distinct events never do.
type Sink struct {
	client *Client
	log    *zap.Logger
}

// NewSink creates a ClickHouse sink
func NewSink(client *Client, log *zap.Logger) *Sink {
	return &Sink{
		client: client,
		log:    log,
	}
}

// row is one behavioral_events row
type row struct {
	EventID    string
	EventName  string
	Timestamp  time.Time
	UserID     string
	SessionID  string
	Properties string
}

func toRow(event domain.Event) (row, error) {
	props := event.Properties
	if props == nil {
		props = map[string]any{}
	}
	body, err := json.Marshal(props)
	if err != nil {
		return row{}, fmt.Errorf("failed to marshal properties: %w", err)
	}
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	return row{
		EventID:    id,
		EventName:  event.Name,
		Timestamp:  event.Timestamp.UTC(),
		UserID:     event.UserID,
		SessionID:  event.SessionID,
		Properties: string(body),
	}, nil
}

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS behavioral_events (
		event_id String,
		event_name LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		user_id String,
		session_id String,
		properties String,
		received_at DateTime64(3) DEFAULT now64(3)
	) ENGINE = ReplacingMergeTree(received_at)
	PRIMARY KEY (event_id)
	ORDER BY (event_id, timestamp)
	PARTITION BY toYYYYMM(timestamp)
	SETTINGS index_granularity = 8192
	`

// InitSchema creates the events table if it does not exist
func (s *Sink) InitSchema(ctx context.Context) error {
	if err := s.client.Conn().Exec(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create behavioral_events table: %w", err)
	}

	s.log.Info("ClickHouse schema initialized")
	return nil
}

func (s *Sink) Name() string { return "clickhouse" }

// Deliver inserts the batch in a single native batch insert
func (s *Sink) Deliver(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.client.Conn().PrepareBatch(ctx, "INSERT INTO behavioral_events (event_id, event_name, timestamp, user_id, session_id, properties)")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, event := range events {
		r, err := toRow(event)
		if err != nil {
			_ = batch.Abort()
			return err
		}
		if err := batch.Append(r.EventID, r.EventName, r.Timestamp, r.UserID, r.SessionID, r.Properties); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.Debug("Inserted events into ClickHouse", zap.Int("count", len(events)))
	return nil
}

// Close closes the ClickHouse connection
func (s *Sink) Close() error {
	return s.client.Close()
}
