package session

import (
	"math"
	"time"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// StartProperties are the properties carried by a synthesized session_start
func StartProperties(s domain.Session) map[string]any {
	return map[string]any{
		"session_started_at": s.StartedAt.UTC().Format(time.RFC3339Nano),
	}
}

// EndProperties are the properties carried by a synthesized session_end.
// The duration is measured from the session start to the end instant.
func EndProperties(s domain.Session, eventCount int) map[string]any {
	seconds := s.EndedAt.Sub(s.StartedAt).Seconds()
	return map[string]any{
		domain.PropSessionDuration:   math.Round(seconds*1000) / 1000,
		domain.PropSessionEventCount: eventCount,
	}
}
