package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments of the telemetry pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	EventsTracked     prometheus.Counter
	EventsPersisted   prometheus.Counter
	EventsDelivered   prometheus.Counter
	DeliveryFailures  prometheus.Counter
	StoreFailures     prometheus.Counter
	SessionsStarted   prometheus.Counter
	SessionsEnded     prometheus.Counter
	PendingEvents     prometheus.Gauge
	UndeliveredEvents prometheus.Gauge
	EventsExpired     prometheus.Counter
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTracked: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_events_tracked_total",
			Help: "Total number of events captured into the pending buffer",
		}),
		EventsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_events_persisted_total",
			Help: "Total number of events appended to the persistent store",
		}),
		EventsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_events_delivered_total",
			Help: "Total number of events accepted by the ingestion endpoint",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_delivery_failures_total",
			Help: "Total number of failed delivery attempts",
		}),
		StoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_store_failures_total",
			Help: "Total number of failed appends to the persistent store",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_sessions_ended_total",
			Help: "Total number of sessions ended by timeout or shutdown",
		}),
		PendingEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_pending_events",
			Help: "Events captured but not yet persisted",
		}),
		UndeliveredEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_undelivered_events",
			Help: "Events persisted but not yet accepted by the ingestion endpoint",
		}),
		EventsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_events_expired_total",
			Help: "Total number of events removed by retention cleanup",
		}),
	}
}

func (m *Metrics) IncTracked() {
	if m != nil {
		m.EventsTracked.Inc()
	}
}

func (m *Metrics) AddPersisted(n int) {
	if m != nil {
		m.EventsPersisted.Add(float64(n))
	}
}

func (m *Metrics) AddDelivered(n int) {
	if m != nil {
		m.EventsDelivered.Add(float64(n))
	}
}

func (m *Metrics) IncDeliveryFailure() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) IncStoreFailure() {
	if m != nil {
		m.StoreFailures.Inc()
	}
}

func (m *Metrics) IncSessionStarted() {
	if m != nil {
		m.SessionsStarted.Inc()
	}
}

func (m *Metrics) IncSessionEnded() {
	if m != nil {
		m.SessionsEnded.Inc()
	}
}

func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.PendingEvents.Set(float64(n))
	}
}

func (m *Metrics) SetUndelivered(n int) {
	if m != nil {
		m.UndeliveredEvents.Set(float64(n))
	}
}

func (m *Metrics) AddExpired(n int) {
	if m != nil {
		m.EventsExpired.Add(float64(n))
	}
}
