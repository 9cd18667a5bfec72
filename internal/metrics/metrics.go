// Package metrics exposes Prometheus instrumentation for the player API.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "player_api"

// Metrics holds the collectors shared by one server instance across restarts.
type Metrics struct {
	subscribers      prometheus.Gauge
	connections      prometheus.Gauge
	eventsWritten    prometheus.Counter
	eventWriteErrors prometheus.Counter
	requests         *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Number of open player status event streams",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of tracked TCP connections",
		}),
		eventsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_written_total",
			Help:      "Total number of SSE frames written to subscribers",
		}),
		eventWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_write_errors_total",
			Help:      "Total number of failed writes to subscribers",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route",
		}, []string{"route"}),
	}
}

func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *Metrics) SubscribersRemoved(n int) {
	if m != nil {
		m.subscribers.Sub(float64(n))
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionsClosed(n int) {
	if m != nil {
		m.connections.Sub(float64(n))
	}
}

func (m *Metrics) EventsWritten(n int) {
	if m != nil {
		m.eventsWritten.Add(float64(n))
	}
}

func (m *Metrics) EventWriteFailed() {
	if m != nil {
		m.eventWriteErrors.Inc()
	}
}

// Request counts one request for route, a route name or "forbidden".
func (m *Metrics) Request(route string) {
	if m != nil {
		m.requests.WithLabelValues(route).Inc()
	}
}
