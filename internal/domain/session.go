package domain

import "time"

// Session is a bounded period of continuous activity
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
}

// Active reports whether the session has not been ended yet
func (s Session) Active() bool {
	return s.ID != "" && s.EndedAt.IsZero()
}

// Duration returns the elapsed time between start and end (or now when the
// session is still running).
func (s Session) Duration(now time.Time) time.Duration {
	end := s.EndedAt
	if end.IsZero() {
		end = now
	}
	return end.Sub(s.StartedAt)
}
