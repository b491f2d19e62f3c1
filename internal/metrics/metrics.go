package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the chat core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	OnlineUsers     prometheus.Gauge
	EventsPublished *prometheus.CounterVec
	EventsDelivered *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	MessagesStored  prometheus.Counter
	StoreErrors     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lichka",
			Name:      "online_users",
			Help:      "Number of users with a live realtime connection.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lichka",
			Name:      "events_published_total",
			Help:      "Realtime events handed to the broadcaster.",
		}, []string{"event"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lichka",
			Name:      "events_delivered_total",
			Help:      "Realtime events queued on a live connection.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lichka",
			Name:      "events_dropped_total",
			Help:      "Realtime events that could not be delivered.",
		}, []string{"event", "reason"}),
		MessagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lichka",
			Name:      "messages_stored_total",
			Help:      "Messages committed to the store.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lichka",
			Name:      "store_errors_total",
			Help:      "Failed store operations by operation name.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.OnlineUsers,
		m.EventsPublished,
		m.EventsDelivered,
		m.EventsDropped,
		m.MessagesStored,
		m.StoreErrors,
	)
	return m
}

func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.OnlineUsers.Set(float64(n))
}

func (m *Metrics) Published(event string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(event).Inc()
}

func (m *Metrics) Delivered(event string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(event).Inc()
}

func (m *Metrics) Dropped(event, reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(event, reason).Inc()
}

func (m *Metrics) Stored() {
	if m == nil {
		return
	}
	m.MessagesStored.Inc()
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}
