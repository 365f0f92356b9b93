package service

import (
	"context"

	"github.com/BarkinBalci/behavior-telemetry/internal/analytics"
	"github.com/BarkinBalci/behavior-telemetry/internal/dto"
	"github.com/BarkinBalci/behavior-telemetry/internal/uploader"
)

// TelemetryServicer defines the interface for telemetry service operations
type TelemetryServicer interface {
	TrackEvent(req *dto.TrackEventRequest) error
	TrackEventsBulk(events []dto.TrackEventRequest) (int, []string)
	SetUserProperties(ctx context.Context, req *dto.UserPropertiesRequest) error
	Flush(ctx context.Context) (*dto.FlushResponse, error)
	Cleanup(ctx context.Context) (*dto.CleanupResponse, error)
	GetBehavior(ctx context.Context) (*analytics.UserBehaviorAnalytics, error)
	GetCohorts(ctx context.Context) (*analytics.CohortAnalysis, error)
	GetFunnel(ctx context.Context, req *dto.FunnelRequest) (*analytics.FunnelAnalysis, error)
	Health(ctx context.Context) error
}

// Engine is the capture and query surface of the tracker
type Engine interface {
	Track(name string, properties map[string]any, userID string)
	SetUserProperty(ctx context.Context, key string, value any) error
	Flush(ctx context.Context) (uploader.Result, error)
	CleanupOldEvents(ctx context.Context) (int, error)
	GetUserBehaviorAnalytics(ctx context.Context) (analytics.UserBehaviorAnalytics, error)
	GetCohortAnalysis(ctx context.Context) (analytics.CohortAnalysis, error)
	GetFunnelAnalysis(ctx context.Context, steps []string) (analytics.FunnelAnalysis, error)
}

// Pinger reports whether the persistent store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}
