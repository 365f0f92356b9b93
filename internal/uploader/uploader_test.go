package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// MockEventAppender is a mock implementation of EventAppender
type MockEventAppender struct {
	mock.Mock
}

func (m *MockEventAppender) AppendEvents(ctx context.Context, events []domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// MockSink is a mock implementation of sink.Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Deliver(ctx context.Context, events []domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Close() error {
	args := m.Called()
	return args.Error(0)
}

// memoryBuffer is an in-memory Buffer
type memoryBuffer struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *memoryBuffer) add(events ...domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
}

func (b *memoryBuffer) Drain() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.events
	b.events = nil
	return drained
}

func (b *memoryBuffer) Requeue(events []domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(append([]domain.Event{}, events...), b.events...)
}

func (b *memoryBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func createTestEvents(n int) []domain.Event {
	events := make([]domain.Event, n)
	for i := range events {
		events[i] = domain.Event{
			Name:      fmt.Sprintf("event_%d", i),
			Timestamp: time.Date(2026, 6, 1, 12, 0, i, 0, time.UTC),
			SessionID: "session-1",
		}
	}
	return events
}

func hasLen(n int) interface{} {
	return mock.MatchedBy(func(events []domain.Event) bool { return len(events) == n })
}

func TestUploader_Flush_Success(t *testing.T) {
	buffer := &memoryBuffer{}
	store := new(MockEventAppender)
	s := new(MockSink)
	u := New(buffer, store, s, Config{Interval: time.Hour}, zap.NewNop(), nil)

	buffer.add(createTestEvents(3)...)
	store.On("AppendEvents", mock.Anything, hasLen(3)).Return(nil).Once()
	s.On("Deliver", mock.Anything, hasLen(3)).Return(nil).Once()

	result, err := u.Flush(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, Result{Persisted: 3, Delivered: 3}, result)
	assert.Equal(t, 0, buffer.len())
	assert.Equal(t, 0, u.Undelivered())
	store.AssertExpectations(t)
	s.AssertExpectations(t)
}

func TestUploader_Flush_EmptyDoesNothing(t *testing.T) {
	store := new(MockEventAppender)
	s := new(MockSink)
	u := New(&memoryBuffer{}, store, s, Config{}, zap.NewNop(), nil)

	result, err := u.Flush(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, Result{}, result)
	store.AssertNotCalled(t, "AppendEvents", mock.Anything, mock.Anything)
	s.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestUploader_Flush_DeliveryFailureRetainsWithoutReappending(t *testing.T) {
	buffer := &memoryBuffer{}
	store := new(MockEventAppender)
	s := new(MockSink)
	u := New(buffer, store, s, Config{}, zap.NewNop(), nil)

	buffer.add(createTestEvents(2)...)
	store.On("AppendEvents", mock.Anything, hasLen(2)).Return(nil).Once()
	s.On("Deliver", mock.Anything, hasLen(2)).Return(errors.New("503 service unavailable")).Once()

	result, err := u.Flush(context.Background())

	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, Result{Persisted: 2, Retained: 2}, result)
	assert.Equal(t, 2, u.Undelivered())

	// Next attempt: one new event is persisted, all three are delivered
	buffer.add(createTestEvents(1)...)
	store.On("AppendEvents", mock.Anything, hasLen(1)).Return(nil).Once()
	s.On("Deliver", mock.Anything, hasLen(3)).Return(nil).Once()

	result, err = u.Flush(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, Result{Persisted: 1, Delivered: 3}, result)
	assert.Equal(t, 0, u.Undelivered())
	store.AssertExpectations(t)
	s.AssertExpectations(t)
}

func TestUploader_Flush_StoreFailureRequeues(t *testing.T) {
	buffer := &memoryBuffer{}
	store := new(MockEventAppender)
	s := new(MockSink)
	u := New(buffer, store, s, Config{}, zap.NewNop(), nil)

	events := createTestEvents(2)
	buffer.add(events...)
	store.On("AppendEvents", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := u.Flush(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist events")
	assert.Equal(t, events, buffer.Drain())
	s.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestUploader_Flush_NoSinkKeepsLocalOnly(t *testing.T) {
	buffer := &memoryBuffer{}
	store := new(MockEventAppender)
	u := New(buffer, store, nil, Config{}, zap.NewNop(), nil)

	buffer.add(createTestEvents(4)...)
	store.On("AppendEvents", mock.Anything, hasLen(4)).Return(nil)

	result, err := u.Flush(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 4, result.Persisted)
	assert.Equal(t, 0, u.Undelivered())
}

func TestUploader_Start_TickerFlush(t *testing.T) {
	buffer := &memoryBuffer{}
	store := new(MockEventAppender)
	s := new(MockSink)
	u := New(buffer, store, s, Config{Interval: 50 * time.Millisecond}, zap.NewNop(), nil)

	buffer.add(createTestEvents(2)...)
	store.On("AppendEvents", mock.Anything, hasLen(2)).Return(nil)
	s.On("Deliver", mock.Anything, hasLen(2)).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go u.Start(ctx)

	// Wait for the interval to trigger a flush
	time.Sleep(100 * time.Millisecond)

	store.AssertExpectations(t)
	s.AssertExpectations(t)
}

func TestUploader_Start_TriggerFlush(t *testing.T) {
	buffer := &memoryBuffer{}
	store := new(MockEventAppender)
	s := new(MockSink)
	u := New(buffer, store, s, Config{Interval: 10 * time.Second}, zap.NewNop(), nil)

	store.On("AppendEvents", mock.Anything, hasLen(50)).Return(nil)
	s.On("Deliver", mock.Anything, hasLen(50)).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go u.Start(ctx)

	buffer.add(createTestEvents(50)...)
	u.Trigger()
	u.Trigger()

	time.Sleep(50 * time.Millisecond)

	store.AssertNumberOfCalls(t, "AppendEvents", 1)
	s.AssertExpectations(t)
}

func TestUploader_Start_Shutdown(t *testing.T) {
	u := New(&memoryBuffer{}, new(MockEventAppender), nil, Config{Interval: time.Hour}, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)

	go func() {
		u.Start(ctx)
		done <- true
	}()

	cancel()

	select {
	case <-done:
		// Shutdown completed
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Uploader shutdown took too long")
	}
}

func TestUploader_Flush_Serialized(t *testing.T) {
	buffer := &memoryBuffer{}
	store := new(MockEventAppender)
	s := new(MockSink)
	u := New(buffer, store, s, Config{}, zap.NewNop(), nil)

	var inFlight, maxInFlight int
	var mu sync.Mutex
	store.On("AppendEvents", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		mu.Lock()
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}).Return(nil)
	s.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buffer.add(createTestEvents(1)...)
			_, _ = u.Flush(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
}
