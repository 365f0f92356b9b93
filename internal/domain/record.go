package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record is the persisted and wire shape of an Event
type Record struct {
	ID         string         `json:"event_id,omitempty"`
	Name       string         `json:"name"`
	Timestamp  string         `json:"timestamp"`
	UserID     *string        `json:"user_id"`
	SessionID  *string        `json:"session_id"`
	Properties map[string]any `json:"properties"`
}

// NewRecord converts an event into its persisted form
func NewRecord(e Event) Record {
	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	return Record{
		ID:         e.ID,
		Name:       e.Name,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:     optional(e.UserID),
		SessionID:  optional(e.SessionID),
		Properties: props,
	}
}

// Event converts a persisted record back into an Event
func (r Record) Event() (Event, error) {
	if r.Name == "" {
		return Event{}, errors.New("record has no name")
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("invalid timestamp %q: %w", r.Timestamp, err)
	}

	e := Event{
		ID:         r.ID,
		Name:       r.Name,
		Timestamp:  ts,
		Properties: r.Properties,
	}
	if r.UserID != nil {
		e.UserID = *r.UserID
	}
	if r.SessionID != nil {
		e.SessionID = *r.SessionID
	}
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	return e, nil
}

// MarshalEvent encodes a single event as a JSON record
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(NewRecord(e))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
