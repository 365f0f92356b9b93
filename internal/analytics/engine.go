package analytics

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// EventReader supplies the full persisted event log
type EventReader interface {
	ReadEvents(ctx context.Context) ([]domain.Event, error)
}

// Engine answers analytics queries by re-reading the log on every call
type Engine struct {
	reader EventReader
	topN   int
	log    *zap.Logger
}

// NewEngine creates a new analytics engine
func NewEngine(reader EventReader, log *zap.Logger) *Engine {
	return &Engine{
		reader: reader,
		topN:   DefaultTopN,
		log:    log,
	}
}

func (e *Engine) events(ctx context.Context) ([]domain.Event, error) {
	events, err := e.reader.ReadEvents(ctx)
	if err != nil {
		e.log.Error("Failed to read event log for analytics", zap.Error(err))
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return events, nil
}

func (e *Engine) GetUserBehaviorAnalytics(ctx context.Context) (UserBehaviorAnalytics, error) {
	events, err := e.events(ctx)
	if err != nil {
		return UserBehaviorAnalytics{}, err
	}
	return UserBehavior(events, e.topN), nil
}

func (e *Engine) GetCohortAnalysis(ctx context.Context) (CohortAnalysis, error) {
	events, err := e.events(ctx)
	if err != nil {
		return CohortAnalysis{}, err
	}
	return Cohorts(events), nil
}

func (e *Engine) GetFunnelAnalysis(ctx context.Context, steps []string) (FunnelAnalysis, error) {
	events, err := e.events(ctx)
	if err != nil {
		return FunnelAnalysis{}, err
	}

	e.log.Debug("Computing funnel", zap.Strings("steps", steps), zap.Int("event_count", len(events)))
	return Funnel(events, steps), nil
}

func (e *Engine) GetRetention(ctx context.Context) (RetentionData, error) {
	events, err := e.events(ctx)
	if err != nil {
		return RetentionData{}, err
	}
	return Retention(events), nil
}
