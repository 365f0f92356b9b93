package sink

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// Sink is a remote ingestion endpoint. Delivery is at-least-once: a batch
// that fails is offered again on the next attempt, and no idempotency key is
// attached, so receivers must tolerate duplicates.
type Sink interface {
	// Deliver sends the batch, returning an error unless every event was accepted
	Deliver(ctx context.Context, events []domain.Event) error

	// Name identifies the sink in logs
	Name() string

	// Close releases resources
	Close() error
}

// Multi fans a batch out to several sinks concurrently. The batch counts as
// delivered only when every sink accepted it.
type Multi struct {
	sinks []Sink
	log   *zap.Logger
}

// NewMulti combines sinks into one
func NewMulti(log *zap.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, log: log}
}

func (m *Multi) Deliver(ctx context.Context, events []domain.Event) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range m.sinks {
		g.Go(func() error {
			if err := s.Deliver(ctx, events); err != nil {
				m.log.Warn("Sink delivery failed",
					zap.String("sink", s.Name()),
					zap.Int("event_count", len(events)),
					zap.Error(err))
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Multi) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// Close closes every sink and reports the first error
func (m *Multi) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			m.log.Error("Failed to close sink", zap.String("sink", s.Name()), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
