package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	connectionsActive      prometheus.Gauge
	messagesSentTotal      *prometheus.CounterVec
	notificationsPublished *prometheus.CounterVec
	unreadResetsTotal      prometheus.Counter
	sseClientsActive       prometheus.Gauge
	requestsTotal          *prometheus.CounterVec
	latencySeconds         *prometheus.HistogramVec
	errorsTotal            *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the realtime
// service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of authenticated websocket connections currently online.",
		})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_messages_sent_total",
			Help: "Total chat messages accepted by the router, by channel kind.",
		}, []string{"channel"})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_notifications_published_total",
			Help: "Total notifications created, by type.",
		}, []string{"type"})

		unreadResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_unread_resets_total",
			Help: "Total conversation-open unread counter resets.",
		})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_sse_clients_active",
			Help: "Number of active SSE notification subscribers.",
		})

		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_http_requests_total",
			Help: "Total number of HTTP API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realtime_http_latency_seconds",
			Help:    "Latency distribution for HTTP API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_http_errors_total",
			Help: "Total number of error responses returned by HTTP endpoints.",
		}, []string{"method", "route", "status"})

		prometheus.MustRegister(
			connectionsActive,
			messagesSentTotal,
			notificationsPublished,
			unreadResetsTotal,
			sseClientsActive,
			requestsTotal,
			latencySeconds,
			errorsTotal,
		)
	})
}

// ConnectionsActive exposes the gauge of online connections.
func ConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return connectionsActive
}

// MessagesSent exposes the counter of accepted chat messages.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// NotificationsPublished exposes the counter of created notifications.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// UnreadResets exposes the counter of unread ledger resets.
func UnreadResets() prometheus.Counter {
	RegisterMetrics()
	return unreadResetsTotal
}

// SSEClientsActive exposes the gauge of SSE subscribers.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// Requests exposes the counter for HTTP requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for HTTP requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for HTTP error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}
