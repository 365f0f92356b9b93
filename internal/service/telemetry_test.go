package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/analytics"
	"github.com/BarkinBalci/behavior-telemetry/internal/dto"
	"github.com/BarkinBalci/behavior-telemetry/internal/uploader"
)

// MockEngine is a mock implementation of Engine
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Track(name string, properties map[string]any, userID string) {
	m.Called(name, properties, userID)
}

func (m *MockEngine) SetUserProperty(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockEngine) Flush(ctx context.Context) (uploader.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(uploader.Result), args.Error(1)
}

func (m *MockEngine) CleanupOldEvents(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockEngine) GetUserBehaviorAnalytics(ctx context.Context) (analytics.UserBehaviorAnalytics, error) {
	args := m.Called(ctx)
	return args.Get(0).(analytics.UserBehaviorAnalytics), args.Error(1)
}

func (m *MockEngine) GetCohortAnalysis(ctx context.Context) (analytics.CohortAnalysis, error) {
	args := m.Called(ctx)
	return args.Get(0).(analytics.CohortAnalysis), args.Error(1)
}

func (m *MockEngine) GetFunnelAnalysis(ctx context.Context, steps []string) (analytics.FunnelAnalysis, error) {
	args := m.Called(ctx, steps)
	return args.Get(0).(analytics.FunnelAnalysis), args.Error(1)
}

// MockPinger is a mock implementation of Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestTelemetryService_TrackEvent_Success(t *testing.T) {
	engine := new(MockEngine)
	svc := NewTelemetryService(engine, new(MockPinger), zap.NewNop())

	props := map[string]interface{}{"screen_name": "home"}
	engine.On("Track", "screen_view", props, "user123").Return()

	err := svc.TrackEvent(&dto.TrackEventRequest{EventName: " screen_view ", UserID: "user123", Properties: props})

	assert.NoError(t, err)
	engine.AssertExpectations(t)
}

func TestTelemetryService_TrackEvent_ReservedName(t *testing.T) {
	engine := new(MockEngine)
	svc := NewTelemetryService(engine, new(MockPinger), zap.NewNop())

	err := svc.TrackEvent(&dto.TrackEventRequest{EventName: "session_end"})

	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "reserved")
	engine.AssertNotCalled(t, "Track", mock.Anything, mock.Anything, mock.Anything)
}

func TestTelemetryService_TrackEventsBulk_PartialSuccess(t *testing.T) {
	engine := new(MockEngine)
	svc := NewTelemetryService(engine, new(MockPinger), zap.NewNop())

	engine.On("Track", mock.Anything, mock.Anything, mock.Anything).Return()

	accepted, rejected := svc.TrackEventsBulk([]dto.TrackEventRequest{
		{EventName: "app_launch", UserID: "user1"},
		{EventName: "session_start", UserID: "user1"},
		{EventName: "feature_usage", UserID: "user2"},
	})

	assert.Equal(t, 2, accepted)
	assert.Len(t, rejected, 1)
	assert.Contains(t, rejected[0], "event 1")
	engine.AssertNumberOfCalls(t, "Track", 2)
}

func TestTelemetryService_SetUserProperties(t *testing.T) {
	engine := new(MockEngine)
	svc := NewTelemetryService(engine, new(MockPinger), zap.NewNop())

	engine.On("SetUserProperty", mock.Anything, "is_premium", true).Return(nil).Once()
	engine.On("SetUserProperty", mock.Anything, "user_type", "premium").Return(nil).Once()

	err := svc.SetUserProperties(context.Background(), &dto.UserPropertiesRequest{
		Properties: map[string]interface{}{"user_type": "premium", "is_premium": true},
	})

	assert.NoError(t, err)
	engine.AssertExpectations(t)
}

func TestTelemetryService_SetUserProperties_EmptyKey(t *testing.T) {
	engine := new(MockEngine)
	svc := NewTelemetryService(engine, new(MockPinger), zap.NewNop())

	err := svc.SetUserProperties(context.Background(), &dto.UserPropertiesRequest{
		Properties: map[string]interface{}{" ": "x", "user_type": "free"},
	})

	assert.ErrorIs(t, err, ErrValidation)
	engine.AssertNotCalled(t, "SetUserProperty", mock.Anything, mock.Anything, mock.Anything)
}

func TestTelemetryService_Flush_Error(t *testing.T) {
	engine := new(MockEngine)
	svc := NewTelemetryService(engine, new(MockPinger), zap.NewNop())

	engine.On("Flush", mock.Anything).Return(uploader.Result{Persisted: 3, Retained: 3}, uploader.ErrDeliveryFailed)

	response, err := svc.Flush(context.Background())

	assert.ErrorIs(t, err, uploader.ErrDeliveryFailed)
	assert.Equal(t, &dto.FlushResponse{Persisted: 3, Retained: 3}, response)
}

func TestTelemetryService_GetFunnel(t *testing.T) {
	engine := new(MockEngine)
	svc := NewTelemetryService(engine, new(MockPinger), zap.NewNop())

	expected := analytics.FunnelAnalysis{Steps: []analytics.FunnelStep{
		{Name: "signup", Count: 10, ConversionRate: 1},
		{Name: "first_log", Count: 5, ConversionRate: 0.5},
	}}
	engine.On("GetFunnelAnalysis", mock.Anything, []string{"signup", "first_log"}).Return(expected, nil)

	result, err := svc.GetFunnel(context.Background(), &dto.FunnelRequest{Steps: "signup, first_log"})

	assert.NoError(t, err)
	assert.Equal(t, &expected, result)
}

func TestTelemetryService_GetFunnel_Invalid(t *testing.T) {
	svc := NewTelemetryService(new(MockEngine), new(MockPinger), zap.NewNop())

	_, err := svc.GetFunnel(context.Background(), &dto.FunnelRequest{Steps: "signup,,first_log"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.GetFunnel(context.Background(), &dto.FunnelRequest{Steps: "a,b,c,d,e,f,g,h,i,j,k,l,m,n,o,p,q,r,s,t,u"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTelemetryService_Cleanup(t *testing.T) {
	engine := new(MockEngine)
	svc := NewTelemetryService(engine, new(MockPinger), zap.NewNop())

	engine.On("CleanupOldEvents", mock.Anything).Return(12, nil).Once()
	engine.On("CleanupOldEvents", mock.Anything).Return(0, errors.New("store closed")).Once()

	response, err := svc.Cleanup(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 12, response.Removed)

	_, err = svc.Cleanup(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clean up events")
}

func TestTelemetryService_Health(t *testing.T) {
	pinger := new(MockPinger)
	svc := NewTelemetryService(new(MockEngine), pinger, zap.NewNop())

	pinger.On("Ping", mock.Anything).Return(nil).Once()
	pinger.On("Ping", mock.Anything).Return(errors.New("connection refused")).Once()

	assert.NoError(t, svc.Health(context.Background()))
	assert.Error(t, svc.Health(context.Background()))
}
