package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
	"github.com/BarkinBalci/behavior-telemetry/internal/metrics"
	"github.com/BarkinBalci/behavior-telemetry/internal/sink"
)

// DefaultInterval is the periodic upload cadence
const DefaultInterval = 5 * time.Minute

// ErrDeliveryFailed wraps sink errors; the events stay queued for the next flush
var ErrDeliveryFailed = errors.New("delivery failed")

// Buffer is the pending buffer the uploader drains
type Buffer interface {
	// Drain removes and returns every pending event
	Drain() []domain.Event

	// Requeue puts events back at the head of the pending buffer
	Requeue(events []domain.Event)
}

// EventAppender persists drained events
type EventAppender interface {
	AppendEvents(ctx context.Context, events []domain.Event) error
}

// Config configures the uploader
type Config struct {
	Interval time.Duration
}

// Result summarizes one flush
type Result struct {
	Persisted int
	Delivered int
	Retained  int
}

// Uploader drains the pending buffer into the persistent store and delivers
// persisted events to the sink. Persisted but undelivered events are kept
// here, so a retry re-delivers them without appending them to the log again.
type Uploader struct {
	buffer  Buffer
	store   EventAppender
	sink    sink.Sink
	config  Config
	log     *zap.Logger
	metrics *metrics.Metrics

	trigger chan struct{}

	// flushMu serializes flushes; undelivered is only touched under it
	flushMu     sync.Mutex
	undelivered []domain.Event
}

// New creates an uploader. A nil sink keeps events local only.
func New(buffer Buffer, store EventAppender, s sink.Sink, config Config, log *zap.Logger, m *metrics.Metrics) *Uploader {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Uploader{
		buffer:  buffer,
		store:   store,
		sink:    s,
		config:  config,
		log:     log,
		metrics: m,
		trigger: make(chan struct{}, 1),
	}
}

// Start runs the periodic upload loop until ctx is cancelled. Trigger
// requests an immediate flush and restarts the interval.
func (u *Uploader) Start(ctx context.Context) {
	ticker := time.NewTicker(u.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.log.Info("Uploader shutting down")
			return

		case <-u.trigger:
			u.log.Debug("Batch size threshold reached")
			u.flushFromLoop(ctx)
			ticker.Reset(u.config.Interval)

		case <-ticker.C:
			u.flushFromLoop(ctx)
		}
	}
}

// Trigger asks the loop for an immediate flush without blocking. Requests
// made while one is already queued are coalesced.
func (u *Uploader) Trigger() {
	select {
	case u.trigger <- struct{}{}:
	default:
	}
}

func (u *Uploader) flushFromLoop(ctx context.Context) {
	if _, err := u.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
		u.log.Warn("Scheduled flush did not complete", zap.Error(err))
	}
}

// Flush drains the pending buffer, appends it to the store, and delivers
// everything not yet accepted by the sink.
func (u *Uploader) Flush(ctx context.Context) (Result, error) {
	u.flushMu.Lock()
	defer u.flushMu.Unlock()

	var result Result

	batch := u.buffer.Drain()
	if len(batch) > 0 {
		if err := u.store.AppendEvents(ctx, batch); err != nil {
			u.buffer.Requeue(batch)
			u.metrics.IncStoreFailure()
			u.log.Error("Failed to persist events",
				zap.Error(err),
				zap.Int("event_count", len(batch)))
			return result, fmt.Errorf("failed to persist events: %w", err)
		}
		result.Persisted = len(batch)
		u.metrics.AddPersisted(len(batch))
		u.undelivered = append(u.undelivered, batch...)
	}

	if len(u.undelivered) == 0 {
		return result, nil
	}

	if u.sink == nil {
		u.undelivered = nil
		u.metrics.SetUndelivered(0)
		return result, nil
	}

	if err := u.sink.Deliver(ctx, u.undelivered); err != nil {
		result.Retained = len(u.undelivered)
		u.metrics.IncDeliveryFailure()
		u.metrics.SetUndelivered(result.Retained)
		u.log.Error("Failed to deliver events, retaining for retry",
			zap.String("sink", u.sink.Name()),
			zap.Int("event_count", result.Retained),
			zap.Error(err))
		return result, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	result.Delivered = len(u.undelivered)
	u.metrics.AddDelivered(result.Delivered)
	u.metrics.SetUndelivered(0)
	u.undelivered = nil

	u.log.Info("Successfully delivered events",
		zap.String("sink", u.sink.Name()),
		zap.Int("count", result.Delivered))
	return result, nil
}

// Undelivered returns how many persisted events still await delivery
func (u *Uploader) Undelivered() int {
	u.flushMu.Lock()
	defer u.flushMu.Unlock()

	return len(u.undelivered)
}
