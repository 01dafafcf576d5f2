package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Signaling Metrics
	signalingErrorsTotal  *prometheus.CounterVec
	signalingRelayedTotal *prometheus.CounterVec
	signalingDroppedTotal prometheus.Counter

	// Call Metrics
	callsTotal  *prometheus.CounterVec
	callsActive prometheus.Gauge

	// Auth Metrics
	authAttemptsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on a private registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"type", "direction"},
		),

		signalingErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_errors_total",
				Help:        "Total number of rejected signaling messages",
				ConstLabels: labels,
			},
			[]string{"code"},
		),
		signalingRelayedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_relayed_total",
				Help:        "Total number of relayed signaling messages",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		signalingDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "signaling_dropped_total",
				Help:        "Total number of signaling messages dropped because the peer was offline",
				ConstLabels: labels,
			},
		),

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of calls by terminal status",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of active calls",
				ConstLabels: labels,
			},
		),

		authAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_attempts_total",
				Help:        "Total number of authentication attempts",
				ConstLabels: labels,
			},
			[]string{"operation", "result"},
		),
	}
}

// GetRegistry returns the private Prometheus registry for the /metrics handler
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocketConnected records a new WebSocket connection
func (m *Metrics) WebSocketConnected() {
	m.websocketConnections.Inc()
}

// WebSocketDisconnected records a closed WebSocket connection
func (m *Metrics) WebSocketDisconnected() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message by type and direction
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordSignalingError records a rejected signaling message by error code
func (m *Metrics) RecordSignalingError(code string) {
	m.signalingErrorsTotal.WithLabelValues(code).Inc()
}

// RecordSignalingRelay records a successfully relayed signaling message
func (m *Metrics) RecordSignalingRelay(msgType string) {
	m.signalingRelayedTotal.WithLabelValues(msgType).Inc()
}

// RecordSignalingDrop records a message dropped because the peer was offline
func (m *Metrics) RecordSignalingDrop() {
	m.signalingDroppedTotal.Inc()
}

// CallStarted records a call transitioning to active
func (m *Metrics) CallStarted() {
	m.callsActive.Inc()
}

// CallEnded records a call reaching the ended state. priorStatus is the
// status the call held before the transition ("created" means the callee
// never answered).
func (m *Metrics) CallEnded(priorStatus string) {
	m.callsTotal.WithLabelValues(priorStatus).Inc()
	if priorStatus == "active" {
		m.callsActive.Dec()
	}
}

// RecordAuthAttempt records an authentication attempt
func (m *Metrics) RecordAuthAttempt(operation, result string) {
	m.authAttemptsTotal.WithLabelValues(operation, result).Inc()
}
