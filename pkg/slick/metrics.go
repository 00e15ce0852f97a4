package slick

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the engine and transport
// layers emit. It uses an isolated registry so a process embedding this
// module doesn't collide with its own default registry, and so each
// test gets its own instance.
type Metrics struct {
	Registry *prometheus.Registry

	BytesSent     *prometheus.CounterVec
	BytesRecv     *prometheus.CounterVec
	PayloadsDropped *prometheus.CounterVec

	ConnectionsOpened *prometheus.CounterVec
	ConnectionsClosed *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
	ActiveEdges        prometheus.Gauge

	NodesKnown prometheus.Gauge
	KeysKnown  prometheus.Gauge

	ForwardedMessages *prometheus.CounterVec
	SuppressedForwards *prometheus.CounterVec

	FetchAttempts *prometheus.CounterVec
	FetchRetries  prometheus.Counter

	TickDurationSeconds prometheus.Histogram

	DaemonRequestsTotal          *prometheus.CounterVec
	DaemonRequestDurationSeconds *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all collectors registered
// on an isolated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_bytes_sent_total",
			Help: "Total bytes written to peer connections.",
		}, []string{"conn"}),
		BytesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_bytes_recv_total",
			Help: "Total bytes read from peer connections.",
		}, []string{"conn"}),
		PayloadsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_payloads_dropped_total",
			Help: "Total payloads dropped instead of sent, by reason.",
		}, []string{"reason"}),

		ConnectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_connections_opened_total",
			Help: "Total connections accepted or dialed, by direction.",
		}, []string{"direction"}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_connections_closed_total",
			Help: "Total connections torn down, by reason.",
		}, []string{"reason"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slick_active_connections",
			Help: "Number of currently open connections.",
		}),
		ActiveEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slick_active_edges",
			Help: "Number of connections eligible for broadcast fan-out.",
		}),

		NodesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slick_nodes_known",
			Help: "Number of Items currently in the membership table.",
		}),
		KeysKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slick_keys_known",
			Help: "Number of distinct keys with at least one known holder.",
		}),

		ForwardedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_forwarded_messages_total",
			Help: "Total Keys/Nodes items re-broadcast by the forward rule.",
		}, []string{"kind"}),
		SuppressedForwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_suppressed_forwards_total",
			Help: "Total Keys/Nodes items received but not re-broadcast.",
		}, []string{"kind"}),

		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_fetch_attempts_total",
			Help: "Total fetch dials, by outcome.",
		}, []string{"outcome"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slick_fetch_retries_total",
			Help: "Total fetch retries scheduled after failure or empty Data.",
		}),

		TickDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slick_tick_duration_seconds",
			Help:    "Wall-clock duration of each gossip engine timer tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),

		DaemonRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slick_daemon_requests_total",
			Help: "Total introspection API requests, by method/path/status.",
		}, []string{"method", "path", "status"}),
		DaemonRequestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slick_daemon_request_duration_seconds",
			Help:    "Introspection API request duration, by method/path/status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	reg.MustRegister(
		m.BytesSent, m.BytesRecv, m.PayloadsDropped,
		m.ConnectionsOpened, m.ConnectionsClosed, m.ActiveConnections, m.ActiveEdges,
		m.NodesKnown, m.KeysKnown,
		m.ForwardedMessages, m.SuppressedForwards,
		m.FetchAttempts, m.FetchRetries,
		m.TickDurationSeconds,
		m.DaemonRequestsTotal, m.DaemonRequestDurationSeconds,
	)

	return m
}

// Handler returns an http.Handler serving the Prometheus exposition
// format for this Metrics instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
