package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicerooms"

// Metrics holds the relay's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections  prometheus.Gauge
	Rooms        prometheus.Gauge
	Events       *prometheus.CounterVec
	Sent         prometheus.Counter
	SendFailures prometheus.Counter
	Messages     *prometheus.CounterVec
}

// New registers the collectors on reg (prometheus.DefaultRegisterer in main,
// a fresh registry in tests)
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "connections",
			Help: "Live websocket connections in the registry.",
		}),
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "rooms",
			Help: "Rooms with at least one live connection.",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "events_total",
			Help: "Inbound websocket events by type.",
		}, []string{"type"}),
		Sent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "sends_total",
			Help: "Outbound frames handed to connections.",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "send_failures_total",
			Help: "Outbound frames dropped because the connection was closed or backed up.",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "messages_total",
			Help: "Chat messages persisted, by message type.",
		}, []string{"message_type"}),
	}
}

func (m *Metrics) SetPresence(rooms, conns int) {
	if m == nil {
		return
	}
	m.Rooms.Set(float64(rooms))
	m.Connections.Set(float64(conns))
}

func (m *Metrics) Event(typ string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(typ).Inc()
}

// Send records one delivery attempt
func (m *Metrics) Send(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SendFailures.Inc()
		return
	}
	m.Sent.Inc()
}

func (m *Metrics) Message(messageType string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(messageType).Inc()
}

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
