package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// Storage keys
const (
	EventsKey         = "events"
	UserPropertiesKey = "user_properties"

	// QuarantinePrefix prefixes copies of event logs that could not be read
	// in full, taken before the log is rewritten
	QuarantinePrefix = "events_quarantine_"
)

// EventStore keeps the serialized event log and the persisted user
// properties on top of a KV. The log is a JSON array of strings, each one an
// independently encoded record, so a damaged record only costs itself.
// Every read-modify-write runs under mu.
type EventStore struct {
	kv        KV
	retention time.Duration
	now       func() time.Time
	log       *zap.Logger
	mu        sync.Mutex
}

// Option customizes an EventStore
type Option func(*EventStore)

// WithClock overrides the time source used by the retention filter
func WithClock(now func() time.Time) Option {
	return func(s *EventStore) {
		s.now = now
	}
}

// NewEventStore creates an event store that drops events older than retention
func NewEventStore(kv KV, retention time.Duration, log *zap.Logger, opts ...Option) *EventStore {
	s := &EventStore{
		kv:        kv,
		retention: retention,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendEvents appends events to the log and applies the retention filter
func (s *EventStore) AppendEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readLocked(ctx)
	if err != nil {
		return err
	}

	merged := append(current.events, events...)
	kept, dropped := s.filterExpired(merged)
	if dropped > 0 {
		s.log.Debug("Dropped expired events on append", zap.Int("dropped", dropped))
	}

	return s.rewriteLocked(ctx, current, kept)
}

// ReadEvents returns every well-formed event in the log, oldest first as
// appended. Corrupt entries are skipped.
func (s *EventStore) ReadEvents(ctx context.Context) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	return current.events, nil
}

// CleanupOldEvents removes events outside the retention window and returns
// how many were removed
func (s *EventStore) CleanupOldEvents(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readLocked(ctx)
	if err != nil {
		return 0, err
	}

	kept, dropped := s.filterExpired(current.events)
	if dropped == 0 {
		return 0, nil
	}

	if err := s.rewriteLocked(ctx, current, kept); err != nil {
		return 0, err
	}

	s.log.Info("Cleaned up expired events",
		zap.Int("removed", dropped),
		zap.Int("remaining", len(kept)))
	return dropped, nil
}

// LoadUserProperties returns the persisted user properties, or an empty map
func (s *EventStore) LoadUserProperties(ctx context.Context) (map[string]any, error) {
	data, err := s.kv.Get(ctx, UserPropertiesKey)
	if errors.Is(err, ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user properties: %w", err)
	}

	props := map[string]any{}
	if err := json.Unmarshal(data, &props); err != nil {
		s.log.Warn("Discarding unparsable user properties", zap.Error(err))
		return map[string]any{}, nil
	}
	return props, nil
}

// SaveUserProperties replaces the persisted user properties
func (s *EventStore) SaveUserProperties(ctx context.Context, props map[string]any) error {
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal user properties: %w", err)
	}
	if err := s.kv.Set(ctx, UserPropertiesKey, data); err != nil {
		return fmt.Errorf("failed to write user properties: %w", err)
	}
	return nil
}

// ClearUserProperties deletes the persisted user properties
func (s *EventStore) ClearUserProperties(ctx context.Context) error {
	if err := s.kv.Delete(ctx, UserPropertiesKey); err != nil {
		return fmt.Errorf("failed to delete user properties: %w", err)
	}
	return nil
}

// Ping checks the backing store
func (s *EventStore) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// eventLog is the decoded state of the stored log
type eventLog struct {
	events []domain.Event
	raw    []byte
	// damaged means raw could not be read in full
	damaged bool
}

func (s *EventStore) readLocked(ctx context.Context) (eventLog, error) {
	data, err := s.kv.Get(ctx, EventsKey)
	if errors.Is(err, ErrNotFound) {
		return eventLog{}, nil
	}
	if err != nil {
		return eventLog{}, fmt.Errorf("failed to read event log: %w", err)
	}

	entries, complete := splitEntries(data)
	current := eventLog{raw: data, damaged: !complete}
	if !complete {
		s.log.Error("Event log is damaged, keeping the entries before the damage",
			zap.Int("bytes", len(data)),
			zap.Int("recovered", len(entries)))
	}

	current.events = make([]domain.Event, 0, len(entries))
	for i, entry := range entries {
		event, err := decodeEntry(entry)
		if err != nil {
			s.log.Warn("Skipping corrupt event entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		current.events = append(current.events, event)
	}

	return current, nil
}

// splitEntries returns the elements of the log array. When the array itself
// is damaged it returns the elements before the damage and false.
func splitEntries(data []byte) ([]json.RawMessage, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, false
	}

	var entries []json.RawMessage
	for dec.More() {
		var entry json.RawMessage
		if err := dec.Decode(&entry); err != nil {
			return entries, false
		}
		entries = append(entries, entry)
	}

	if _, err := dec.Token(); err != nil {
		return entries, false
	}
	return entries, true
}

func decodeEntry(entry json.RawMessage) (domain.Event, error) {
	var encoded string
	if err := json.Unmarshal(entry, &encoded); err != nil {
		return domain.Event{}, fmt.Errorf("entry is not an encoded record: %w", err)
	}

	var record domain.Record
	if err := json.Unmarshal([]byte(encoded), &record); err != nil {
		return domain.Event{}, fmt.Errorf("failed to parse record: %w", err)
	}
	return record.Event()
}

// rewriteLocked replaces the log with events. A damaged log is copied to a
// quarantine key first; if that copy fails the log is left untouched.
func (s *EventStore) rewriteLocked(ctx context.Context, current eventLog, events []domain.Event) error {
	if current.damaged {
		key := fmt.Sprintf("%s%d", QuarantinePrefix, s.now().UnixNano())
		if err := s.kv.Set(ctx, key, current.raw); err != nil {
			return fmt.Errorf("failed to quarantine damaged event log: %w", err)
		}
		s.log.Warn("Damaged event log copied aside",
			zap.String("key", key),
			zap.Int("bytes", len(current.raw)))
	}

	entries := make([]string, 0, len(events))
	for _, event := range events {
		body, err := domain.MarshalEvent(event)
		if err != nil {
			s.log.Error("Dropping event that cannot be encoded",
				zap.String("event_name", event.Name),
				zap.Error(err))
			continue
		}
		entries = append(entries, string(body))
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal event log: %w", err)
	}

	if err := s.kv.Set(ctx, EventsKey, data); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}

func (s *EventStore) filterExpired(events []domain.Event) ([]domain.Event, int) {
	cutoff := s.now().Add(-s.retention)

	kept := make([]domain.Event, 0, len(events))
	for _, event := range events {
		if event.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, event)
	}
	return kept, len(events) - len(kept)
}
