package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// DefaultTimeout closes a session after 30 minutes without activity
const DefaultTimeout = 30 * time.Minute

// TimeoutFunc is invoked from the timer goroutine when the inactivity window
// elapses. gen identifies the reset that armed the timer; pass it back to
// Expire so superseded timers are ignored.
type TimeoutFunc func(gen uint64)

// Manager owns session identity and the inactivity timer. It is not safe for
// concurrent use on its own: the owner serializes every call under the same
// lock that guards its pending buffer, including the TimeoutFunc path.
type Manager struct {
	timeout   time.Duration
	onTimeout TimeoutFunc
	newID     func() string

	current    domain.Session
	eventCount int
	gen        uint64

	timerMu sync.Mutex
	timer   *time.Timer
}

// Option customizes a Manager
type Option func(*Manager)

// WithIDGenerator replaces the UUID session id generator
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// NewManager creates a manager in the Inactive state
func NewManager(timeout time.Duration, onTimeout TimeoutFunc, opts ...Option) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m := &Manager{
		timeout:   timeout,
		onTimeout: onTimeout,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the active session, if any
func (m *Manager) Current() (domain.Session, bool) {
	return m.current, m.current.Active()
}

// Ensure returns the active session, starting a new one at now when the
// manager is Inactive. started reports whether a session was created.
func (m *Manager) Ensure(now time.Time) (s domain.Session, started bool) {
	if m.current.Active() {
		return m.current, false
	}

	m.current = domain.Session{ID: m.newID(), StartedAt: now}
	m.eventCount = 0
	return m.current, true
}

// Touch records activity in the active session and restarts the inactivity
// timer. The latest call wins; earlier timers become stale.
func (m *Manager) Touch() {
	if !m.current.Active() {
		return
	}
	m.eventCount++
	m.gen++
	m.arm(m.gen)
}

// Expire ends the session when gen still matches the most recent Touch.
// ok is false for stale timers or when no session is active.
func (m *Manager) Expire(gen uint64, now time.Time) (ended domain.Session, eventCount int, ok bool) {
	if gen != m.gen || !m.current.Active() {
		return domain.Session{}, 0, false
	}
	return m.end(now)
}

// End closes the active session immediately, e.g. at shutdown
func (m *Manager) End(now time.Time) (ended domain.Session, eventCount int, ok bool) {
	if !m.current.Active() {
		return domain.Session{}, 0, false
	}
	m.Stop()
	return m.end(now)
}

// Stop cancels the pending inactivity timer without ending the session
func (m *Manager) Stop() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) end(now time.Time) (domain.Session, int, bool) {
	m.gen++
	ended := m.current
	ended.EndedAt = now
	count := m.eventCount

	m.current = domain.Session{}
	m.eventCount = 0
	return ended, count, true
}

func (m *Manager) arm(gen uint64) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, func() {
		if m.onTimeout != nil {
			m.onTimeout(gen)
		}
	})
}
