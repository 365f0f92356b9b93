package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// MockProducer is a mock implementation of Producer
type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	args := m.Called(ctx, rs)
	results := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		results[i] = kgo.ProduceResult{Record: r, Err: args.Error(0)}
	}
	return results
}

func (m *MockProducer) Close() {
	m.Called()
}

var testEvents = []domain.Event{
	{Name: "session_start", Timestamp: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), UserID: "user123", SessionID: "session-1"},
	{Name: "app_launch", Timestamp: time.Date(2026, 6, 1, 12, 0, 1, 0, time.UTC), UserID: "user123"},
}

func TestSink_Deliver(t *testing.T) {
	producer := new(MockProducer)
	s := NewWithProducer(producer, "telemetry-events", zap.NewNop())

	var produced []*kgo.Record
	producer.On("ProduceSync", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { produced = args.Get(1).([]*kgo.Record) }).
		Return(nil)

	err := s.Deliver(context.Background(), testEvents)

	assert.NoError(t, err)
	assert.Len(t, produced, 2)
	assert.Equal(t, "telemetry-events", produced[0].Topic)
	assert.Equal(t, []byte("session-1"), produced[0].Key)
	assert.Equal(t, []byte("user123"), produced[1].Key)
	assert.Equal(t, "session_start", string(produced[0].Headers[0].Value))
	assert.Contains(t, string(produced[1].Value), `"name":"app_launch"`)
}

func TestSink_Deliver_ProduceError(t *testing.T) {
	producer := new(MockProducer)
	s := NewWithProducer(producer, "telemetry-events", zap.NewNop())

	producer.On("ProduceSync", mock.Anything, mock.Anything).Return(errors.New("NOT_LEADER_FOR_PARTITION"))

	err := s.Deliver(context.Background(), testEvents)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to produce to telemetry-events")
}

func TestSink_Close(t *testing.T) {
	producer := new(MockProducer)
	producer.On("Close").Return()

	assert.NoError(t, NewWithProducer(producer, "t", zap.NewNop()).Close())
	producer.AssertCalled(t, "Close")
}
