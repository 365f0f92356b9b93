package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/analytics"
	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
	"github.com/BarkinBalci/behavior-telemetry/internal/dto"
)

// ErrValidation marks requests rejected before reaching the engine
var ErrValidation = errors.New("validation failed")

// MaxFunnelSteps bounds the length of a funnel query
const MaxFunnelSteps = 20

// reservedEvents are synthesized by the engine and cannot be captured by callers
var reservedEvents = map[string]struct{}{
	domain.EventSessionStart: {},
	domain.EventSessionEnd:   {},
}

// TelemetryService represents telemetry service
type TelemetryService struct {
	engine Engine
	store  Pinger
	log    *zap.Logger
}

// NewTelemetryService creates a new telemetry service
func NewTelemetryService(engine Engine, store Pinger, log *zap.Logger) *TelemetryService {
	return &TelemetryService{
		engine: engine,
		store:  store,
		log:    log,
	}
}

func validateEvent(req *dto.TrackEventRequest) error {
	name := strings.TrimSpace(req.EventName)
	if name == "" {
		return fmt.Errorf("%w: event_name is required", ErrValidation)
	}
	if _, reserved := reservedEvents[name]; reserved {
		return fmt.Errorf("%w: event_name %q is reserved", ErrValidation, name)
	}
	return nil
}

// TrackEvent captures a single event
func (s *TelemetryService) TrackEvent(req *dto.TrackEventRequest) error {
	if err := validateEvent(req); err != nil {
		s.log.Warn("Event validation failed",
			zap.String("event_name", req.EventName),
			zap.Error(err))
		return err
	}

	s.engine.Track(strings.TrimSpace(req.EventName), req.Properties, req.UserID)
	return nil
}

// TrackEventsBulk validates and captures multiple events. It returns the
// accepted count and one message per rejected event.
func (s *TelemetryService) TrackEventsBulk(events []dto.TrackEventRequest) (int, []string) {
	accepted := 0
	var rejected []string

	for i := range events {
		if err := s.TrackEvent(&events[i]); err != nil {
			rejected = append(rejected, fmt.Sprintf("event %d: %s", i, err.Error()))
			continue
		}
		accepted++
	}

	return accepted, rejected
}

// SetUserProperties sets each sticky user property in key order
func (s *TelemetryService) SetUserProperties(ctx context.Context, req *dto.UserPropertiesRequest) error {
	keys := slices.Sorted(maps.Keys(req.Properties))
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: property key must not be empty", ErrValidation)
		}
	}

	for _, key := range keys {
		if err := s.engine.SetUserProperty(ctx, key, req.Properties[key]); err != nil {
			return fmt.Errorf("failed to set user property %q: %w", key, err)
		}
	}

	s.log.Info("User properties updated", zap.Int("count", len(req.Properties)))
	return nil
}

// Flush forces a synchronous upload
func (s *TelemetryService) Flush(ctx context.Context) (*dto.FlushResponse, error) {
	result, err := s.engine.Flush(ctx)
	response := &dto.FlushResponse{
		Persisted: result.Persisted,
		Delivered: result.Delivered,
		Retained:  result.Retained,
	}
	if err != nil {
		return response, fmt.Errorf("failed to flush events: %w", err)
	}
	return response, nil
}

// Cleanup drops events outside the retention window
func (s *TelemetryService) Cleanup(ctx context.Context) (*dto.CleanupResponse, error) {
	removed, err := s.engine.CleanupOldEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up events: %w", err)
	}

	s.log.Info("Expired events removed", zap.Int("removed", removed))
	return &dto.CleanupResponse{Removed: removed}, nil
}

func (s *TelemetryService) GetBehavior(ctx context.Context) (*analytics.UserBehaviorAnalytics, error) {
	result, err := s.engine.GetUserBehaviorAnalytics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute behavior analytics: %w", err)
	}
	return &result, nil
}

func (s *TelemetryService) GetCohorts(ctx context.Context) (*analytics.CohortAnalysis, error) {
	result, err := s.engine.GetCohortAnalysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cohort analysis: %w", err)
	}
	return &result, nil
}

// GetFunnel parses the ordered step list and computes the funnel
func (s *TelemetryService) GetFunnel(ctx context.Context, req *dto.FunnelRequest) (*analytics.FunnelAnalysis, error) {
	var steps []string
	for _, step := range strings.Split(req.Steps, ",") {
		step = strings.TrimSpace(step)
		if step == "" {
			return nil, fmt.Errorf("%w: funnel steps must not be empty", ErrValidation)
		}
		steps = append(steps, step)
	}
	if len(steps) > MaxFunnelSteps {
		s.log.Warn("Funnel too long", zap.Int("steps", len(steps)))
		return nil, fmt.Errorf("%w: at most %d funnel steps are supported, got %d", ErrValidation, MaxFunnelSteps, len(steps))
	}

	result, err := s.engine.GetFunnelAnalysis(ctx, steps)
	if err != nil {
		return nil, fmt.Errorf("failed to compute funnel analysis: %w", err)
	}
	return &result, nil
}

// Health pings the persistent store
func (s *TelemetryService) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	return nil
}
