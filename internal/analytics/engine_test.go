package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// MockEventReader is a mock implementation of EventReader
type MockEventReader struct {
	mock.Mock
}

func (m *MockEventReader) ReadEvents(ctx context.Context) ([]domain.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Event), args.Error(1)
}

func TestEngine_ReadsLogOnEveryQuery(t *testing.T) {
	reader := new(MockEventReader)
	engine := NewEngine(reader, zap.NewNop())
	ctx := context.Background()

	events := []domain.Event{
		ev("signup", "u1", "s1", base, nil),
		ev("signup", "u2", "s2", base, nil),
		ev("purchase", "u1", "s1", base.Add(day*2), nil),
	}
	reader.On("ReadEvents", mock.Anything).Return(events, nil)

	funnel, err := engine.GetFunnelAnalysis(ctx, []string{"signup", "purchase"})
	assert.NoError(t, err)
	assert.Equal(t, []int{2, 1}, funnel.Counts())

	retention, err := engine.GetRetention(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0.5, retention.Day1)

	behavior, err := engine.GetUserBehaviorAnalytics(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, behavior.TotalEvents)

	cohorts, err := engine.GetCohortAnalysis(ctx)
	assert.NoError(t, err)
	assert.Empty(t, cohorts.Cohorts)

	reader.AssertNumberOfCalls(t, "ReadEvents", 4)
}

func TestEngine_ReadError(t *testing.T) {
	reader := new(MockEventReader)
	engine := NewEngine(reader, zap.NewNop())

	reader.On("ReadEvents", mock.Anything).Return(nil, errors.New("database is locked"))

	_, err := engine.GetUserBehaviorAnalytics(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read event log")
}
