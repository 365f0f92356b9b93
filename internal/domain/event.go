package domain

import (
	"maps"
	"slices"
	"time"
)

// Well-known event names produced by the engine and its capture wrappers
const (
	EventSessionStart  = "session_start"
	EventSessionEnd    = "session_end"
	EventAppLaunch     = "app_launch"
	EventScreenView    = "screen_view"
	EventUserAction    = "user_action"
	EventFeatureUsage  = "feature_usage"
	EventConversion    = "conversion"
	EventError         = "error"
	EventPerformance   = "performance"
	EventHealthInsight = "health_insight"
	EventCycleEvent    = "cycle_event"
)

// Property keys the engine writes or reads itself
const (
	PropSessionDuration    = "session_duration_seconds"
	PropSessionEventCount  = "event_count"
	PropScreenName         = "screen_name"
	PropFeatureName        = "feature_name"
	PropUserID             = "user_id"
	PropContextUnavailable = "context_unavailable"
)

// Event represents a captured behavioral event. Events are never mutated
// after they reach the pending buffer.
type Event struct {
	ID         string
	Name       string
	Timestamp  time.Time
	UserID     string
	SessionID  string
	Properties map[string]any
}

// Clone returns a copy of e with its own property map
func (e Event) Clone() Event {
	e.Properties = CloneProperties(e.Properties)
	return e
}

// CloneProperties deep-copies props. Nested maps and slices are copied so a
// caller mutating its own values cannot reach a captured event.
func CloneProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for key, value := range props {
		out[key] = CloneValue(value)
	}
	return out
}

// CloneValue deep-copies JSON-like collections and returns other values as is
func CloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return CloneProperties(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(v)
	case []int:
		return slices.Clone(v)
	case []float64:
		return slices.Clone(v)
	case map[string]string:
		return maps.Clone(v)
	default:
		return value
	}
}

// Property returns the string form of a property, or "" when it is missing
// or not a string.
func (e Event) Property(key string) string {
	if s, ok := e.Properties[key].(string); ok {
		return s
	}
	return ""
}
