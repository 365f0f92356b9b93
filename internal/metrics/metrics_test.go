package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncTracked()
	m.IncTracked()
	m.AddPersisted(5)
	m.IncDeliveryFailure()
	m.SetPending(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTracked))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.EventsPersisted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PendingEvents))

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncTracked()
		m.AddDelivered(3)
		m.SetUndelivered(1)
		m.IncSessionEnded()
	})
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
