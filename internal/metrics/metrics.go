// Package metrics provides Prometheus instrumentation for the client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Quantify client.
// Pass to components that need to record metrics; a nil *Metrics is valid
// and records nothing.
type Metrics struct {
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	TokenRefreshes        *prometheus.CounterVec
	SocketReconnects      prometheus.Counter
	SocketConnected       prometheus.Gauge
	NotificationsReceived prometheus.Counter
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quantify",
				Name:      "api_requests_total",
				Help:      "Total API requests issued by the client",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quantify",
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		TokenRefreshes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quantify",
				Name:      "token_refreshes_total",
				Help:      "Token refresh attempts",
			},
			[]string{"result"}, // result=ok/failed
		),
		SocketReconnects: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "quantify",
				Name:      "socket_reconnects_total",
				Help:      "Notification socket reconnect attempts",
			},
		),
		SocketConnected: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "quantify",
				Name:      "socket_connected",
				Help:      "Whether the notification socket is currently open (0 or 1)",
			},
		),
		NotificationsReceived: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "quantify",
				Name:      "notifications_received_total",
				Help:      "Notification events delivered over the live channel",
			},
		),
	}
}

// ObserveRequest records one completed API request. Safe on a nil receiver.
func (m *Metrics) ObserveRequest(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(seconds)
}

// ObserveRefresh records one token refresh attempt. Safe on a nil receiver.
func (m *Metrics) ObserveRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

// ObserveReconnect records one socket reconnect attempt. Safe on a nil receiver.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.SocketReconnects.Inc()
}

// SetConnected records socket connectivity. Safe on a nil receiver.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.SocketConnected.Set(1)
	} else {
		m.SocketConnected.Set(0)
	}
}

// ObserveNotification records one live notification event. Safe on a nil receiver.
func (m *Metrics) ObserveNotification() {
	if m == nil {
		return
	}
	m.NotificationsReceived.Inc()
}
