package tracker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/analytics"
	"github.com/BarkinBalci/behavior-telemetry/internal/config"
	"github.com/BarkinBalci/behavior-telemetry/internal/device"
	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
	"github.com/BarkinBalci/behavior-telemetry/internal/metrics"
	"github.com/BarkinBalci/behavior-telemetry/internal/session"
	"github.com/BarkinBalci/behavior-telemetry/internal/sink"
	"github.com/BarkinBalci/behavior-telemetry/internal/uploader"
)

var (
	// ErrInitialization is returned when the context providers fail. The
	// tracker still opens in degraded mode.
	ErrInitialization = errors.New("initialization failed")

	// ErrDisposed is returned by operations invoked after Dispose
	ErrDisposed = errors.New("tracker disposed")
)

// Store is the persistence the tracker needs
type Store interface {
	uploader.EventAppender
	analytics.EventReader
	CleanupOldEvents(ctx context.Context) (int, error)
	LoadUserProperties(ctx context.Context) (map[string]any, error)
	SaveUserProperties(ctx context.Context, props map[string]any) error
	ClearUserProperties(ctx context.Context) error
}

type state int

const (
	stateStarting state = iota
	stateReady
	stateDisposed
)

// queuedCall is a Track call captured before Initialize completed
type queuedCall struct {
	name       string
	properties map[string]any
	userID     string
	at         time.Time
}

// Tracker is the capture surface of the engine. One mutex guards the pending
// buffer, the pre-initialization queue, sticky user properties and the
// session manager, including the inactivity timeout path.
type Tracker struct {
	store     Store
	platform  device.PlatformProvider
	app       device.AppProvider
	analytics *analytics.Engine
	uploader  *uploader.Uploader
	config    config.Engine
	important map[string]struct{}
	now       func() time.Time
	log       *zap.Logger
	metrics   *metrics.Metrics

	mu          sync.Mutex
	state       state
	pending     []domain.Event
	queued      []queuedCall
	deviceProps map[string]any
	userProps   map[string]any
	userID      string
	sessions    *session.Manager

	// propsMu orders persisted user property writes
	propsMu sync.Mutex

	cancelUpload context.CancelFunc
	uploadDone   chan struct{}
}

// Option customizes a Tracker
type Option func(*Tracker)

// WithClock overrides the capture clock
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithSessionOptions forwards options to the session manager
func WithSessionOptions(opts ...session.Option) Option {
	return func(t *Tracker) {
		t.sessions = session.NewManager(t.config.SessionTimeout, t.onSessionTimeout, opts...)
	}
}

// New creates a tracker. A nil sink keeps events local only. The tracker
// buffers Track calls until Initialize completes.
func New(store Store, s sink.Sink, platform device.PlatformProvider, app device.AppProvider, cfg config.Engine, log *zap.Logger, m *metrics.Metrics, opts ...Option) *Tracker {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 50
	}

	t := &Tracker{
		store:     store,
		platform:  platform,
		app:       app,
		analytics: analytics.NewEngine(store, log),
		config:    cfg,
		important: make(map[string]struct{}, len(cfg.ImportantProperties)),
		now:       time.Now,
		log:       log,
		metrics:   m,
		userProps: make(map[string]any),
	}
	for _, key := range cfg.ImportantProperties {
		t.important[key] = struct{}{}
	}

	t.sessions = session.NewManager(cfg.SessionTimeout, t.onSessionTimeout)
	for _, opt := range opts {
		opt(t)
	}

	t.uploader = uploader.New(t, store, s, uploader.Config{Interval: cfg.UploadInterval}, log, m)
	return t
}

// Initialize reads device and app context, restores persisted user
// properties, replays calls captured before it and starts the upload loop.
// A provider failure returns ErrInitialization; capture continues with
// events marked context_unavailable.
func (t *Tracker) Initialize(ctx context.Context, userID string) error {
	t.mu.Lock()
	switch t.state {
	case stateDisposed:
		t.mu.Unlock()
		return ErrDisposed
	case stateReady:
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	contextProps, initErr := t.loadContext(ctx)

	persisted, err := t.store.LoadUserProperties(ctx)
	if err != nil {
		t.log.Warn("Failed to restore user properties", zap.Error(err))
	}

	t.mu.Lock()
	switch t.state {
	case stateDisposed:
		t.mu.Unlock()
		return ErrDisposed
	case stateReady:
		// A concurrent Initialize finished first
		t.mu.Unlock()
		return nil
	}

	t.deviceProps = contextProps
	for key, value := range persisted {
		if _, set := t.userProps[key]; !set {
			t.userProps[key] = value
		}
	}
	if userID != "" {
		t.userID = userID
	}
	t.state = stateReady

	queued := t.queued
	t.queued = nil
	trigger := false
	for _, call := range queued {
		trigger = t.capture(call.name, call.properties, call.userID, call.at) || trigger
	}

	uploadCtx, cancel := context.WithCancel(context.Background())
	t.cancelUpload = cancel
	t.uploadDone = make(chan struct{})
	t.mu.Unlock()

	go func() {
		defer close(t.uploadDone)
		t.uploader.Start(uploadCtx)
	}()

	if trigger {
		t.uploader.Trigger()
	}

	t.log.Info("Tracker initialized",
		zap.String("user_id", userID),
		zap.Int("replayed", len(queued)),
		zap.Bool("degraded", initErr != nil))
	return initErr
}

func (t *Tracker) loadContext(ctx context.Context) (map[string]any, error) {
	platform, err := t.platform.Platform(ctx)
	if err != nil {
		t.log.Error("Platform context unavailable", zap.Error(err))
		return degradedContext(), fmt.Errorf("%w: platform context: %w", ErrInitialization, err)
	}

	app, err := t.app.App(ctx)
	if err != nil {
		t.log.Error("App context unavailable", zap.Error(err))
		return degradedContext(), fmt.Errorf("%w: app context: %w", ErrInitialization, err)
	}

	return device.Properties(platform, app), nil
}

func degradedContext() map[string]any {
	return map[string]any{domain.PropContextUnavailable: true}
}

// Track captures an event. It never blocks on I/O and never fails: calls
// before Initialize are queued, calls after Dispose are dropped. properties
// is deep-copied, so later changes by the caller do not reach the event.
func (t *Tracker) Track(name string, properties map[string]any, userID string) {
	at := t.now()

	t.mu.Lock()
	switch t.state {
	case stateDisposed:
		t.mu.Unlock()
		t.log.Warn("Event dropped after dispose", zap.String("event_name", name))
		return
	case stateStarting:
		t.queued = append(t.queued, queuedCall{
			name:       name,
			properties: domain.CloneProperties(properties),
			userID:     userID,
			at:         at,
		})
		t.mu.Unlock()
		t.log.Warn("Event captured before initialization", zap.String("event_name", name))
		return
	}

	trigger := t.capture(name, properties, userID, at)
	t.mu.Unlock()

	if trigger {
		t.uploader.Trigger()
	}
}

// capture appends an event, starting a session when none is active. It
// reports whether the pending buffer reached the flush threshold. Caller
// holds mu.
func (t *Tracker) capture(name string, properties map[string]any, userID string, at time.Time) bool {
	userID = t.resolveUserID(userID)

	sess, started := t.sessions.Ensure(at)
	if started {
		t.append(domain.EventSessionStart, session.StartProperties(sess), userID, sess.ID, at)
		t.metrics.IncSessionStarted()
		t.log.Debug("Session started", zap.String("session_id", sess.ID))
	}

	t.append(name, properties, userID, sess.ID, at)
	t.sessions.Touch()
	t.metrics.IncTracked()

	return len(t.pending) >= t.config.FlushThreshold
}

// append merges context, sticky user properties and call properties, by
// increasing precedence. Caller holds mu.
func (t *Tracker) append(name string, properties map[string]any, userID, sessionID string, at time.Time) {
	merged := make(map[string]any, len(t.deviceProps)+len(t.userProps)+len(properties))
	maps.Copy(merged, t.deviceProps)
	maps.Copy(merged, t.userProps)
	maps.Copy(merged, domain.CloneProperties(properties))

	t.pending = append(t.pending, domain.Event{
		ID:         uuid.NewString(),
		Name:       name,
		Timestamp:  at,
		UserID:     userID,
		SessionID:  sessionID,
		Properties: merged,
	})
	t.metrics.SetPending(len(t.pending))
}

func (t *Tracker) resolveUserID(userID string) string {
	if userID != "" {
		return userID
	}
	if id, ok := t.userProps[domain.PropUserID].(string); ok && id != "" {
		return id
	}
	return t.userID
}

func (t *Tracker) onSessionTimeout(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == stateDisposed {
		return
	}
	t.endSession(func(now time.Time) (domain.Session, int, bool) {
		return t.sessions.Expire(gen, now)
	})
}

// endSession synthesizes session_end for the session closed by end. Caller
// holds mu.
func (t *Tracker) endSession(end func(now time.Time) (domain.Session, int, bool)) {
	ended, count, ok := end(t.now())
	if !ok {
		return
	}

	t.append(domain.EventSessionEnd, session.EndProperties(ended, count), t.resolveUserID(""), ended.ID, ended.EndedAt)
	t.metrics.IncSessionEnded()
	t.log.Debug("Session ended",
		zap.String("session_id", ended.ID),
		zap.Duration("duration", ended.Duration(ended.EndedAt)),
		zap.Int("event_count", count))
}

// SessionID returns the active session id, or "" when none is active
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, _ := t.sessions.Current()
	return s.ID
}

// Drain removes and returns every pending event
func (t *Tracker) Drain() []domain.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	drained := t.pending
	t.pending = nil
	t.metrics.SetPending(0)
	return drained
}

// Requeue puts events back at the head of the pending buffer
func (t *Tracker) Requeue(events []domain.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = append(append(make([]domain.Event, 0, len(events)+len(t.pending)), events...), t.pending...)
	t.metrics.SetPending(len(t.pending))
}

// Pending returns the number of captured events not yet persisted
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

// SetUserProperty sets a sticky property merged into every later event.
// Allow-listed keys are persisted and restored at Initialize.
func (t *Tracker) SetUserProperty(ctx context.Context, key string, value any) error {
	t.propsMu.Lock()
	defer t.propsMu.Unlock()

	t.mu.Lock()
	if t.state == stateDisposed {
		t.mu.Unlock()
		return ErrDisposed
	}
	t.userProps[key] = domain.CloneValue(value)
	_, important := t.important[key]
	snapshot := t.importantProps()
	t.mu.Unlock()

	if !important {
		return nil
	}
	if err := t.store.SaveUserProperties(ctx, snapshot); err != nil {
		t.log.Error("Failed to persist user property", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to persist user property %q: %w", key, err)
	}
	return nil
}

// ClearUserProperties removes sticky and persisted user properties
func (t *Tracker) ClearUserProperties(ctx context.Context) error {
	t.propsMu.Lock()
	defer t.propsMu.Unlock()

	t.mu.Lock()
	if t.state == stateDisposed {
		t.mu.Unlock()
		return ErrDisposed
	}
	t.userProps = make(map[string]any)
	t.mu.Unlock()

	if err := t.store.ClearUserProperties(ctx); err != nil {
		return fmt.Errorf("failed to clear user properties: %w", err)
	}
	t.log.Info("User properties cleared")
	return nil
}

// importantProps returns the allow-listed subset of user properties. Caller
// holds mu.
func (t *Tracker) importantProps() map[string]any {
	props := make(map[string]any)
	for key, value := range t.userProps {
		if _, ok := t.important[key]; ok {
			props[key] = value
		}
	}
	return props
}

func (t *Tracker) disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state == stateDisposed
}

// Flush persists the pending buffer and delivers undelivered events
func (t *Tracker) Flush(ctx context.Context) (uploader.Result, error) {
	if t.disposed() {
		return uploader.Result{}, ErrDisposed
	}
	return t.uploader.Flush(ctx)
}

// CleanupOldEvents drops events older than the retention window
func (t *Tracker) CleanupOldEvents(ctx context.Context) (int, error) {
	if t.disposed() {
		return 0, ErrDisposed
	}

	removed, err := t.store.CleanupOldEvents(ctx)
	if err != nil {
		return 0, err
	}
	t.metrics.AddExpired(removed)
	return removed, nil
}

func (t *Tracker) GetUserBehaviorAnalytics(ctx context.Context) (analytics.UserBehaviorAnalytics, error) {
	if t.disposed() {
		return analytics.UserBehaviorAnalytics{}, ErrDisposed
	}
	return t.analytics.GetUserBehaviorAnalytics(ctx)
}

func (t *Tracker) GetCohortAnalysis(ctx context.Context) (analytics.CohortAnalysis, error) {
	if t.disposed() {
		return analytics.CohortAnalysis{}, ErrDisposed
	}
	return t.analytics.GetCohortAnalysis(ctx)
}

func (t *Tracker) GetFunnelAnalysis(ctx context.Context, steps []string) (analytics.FunnelAnalysis, error) {
	if t.disposed() {
		return analytics.FunnelAnalysis{}, ErrDisposed
	}
	return t.analytics.GetFunnelAnalysis(ctx, steps)
}

func (t *Tracker) GetRetention(ctx context.Context) (analytics.RetentionData, error) {
	if t.disposed() {
		return analytics.RetentionData{}, ErrDisposed
	}
	return t.analytics.GetRetention(ctx)
}

// Dispose stops the upload loop and the inactivity timer, ends the active
// session and makes a best-effort final flush bounded by ctx. Calls
// captured before Initialize are kept, marked context_unavailable.
func (t *Tracker) Dispose(ctx context.Context) error {
	t.mu.Lock()
	if t.state == stateDisposed {
		t.mu.Unlock()
		return nil
	}

	if t.state == stateStarting {
		t.deviceProps = degradedContext()
		for _, call := range t.queued {
			t.capture(call.name, call.properties, call.userID, call.at)
		}
		t.queued = nil
	}
	t.state = stateDisposed
	t.endSession(t.sessions.End)
	t.sessions.Stop()

	cancel, done := t.cancelUpload, t.uploadDone
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			t.log.Warn("Upload loop did not stop before dispose deadline")
		}
	}

	result, err := t.uploader.Flush(ctx)
	if err != nil {
		t.log.Error("Final flush did not complete", zap.Error(err))
		return fmt.Errorf("failed to flush on dispose: %w", err)
	}

	t.log.Info("Tracker disposed",
		zap.Int("persisted", result.Persisted),
		zap.Int("delivered", result.Delivered))
	return nil
}
