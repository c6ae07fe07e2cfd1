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
	websocketErrorsTotal   *prometheus.CounterVec

	// Call Session Metrics
	callsActive        prometheus.Gauge
	callsDuration      prometheus.Histogram
	joinsTotal         *prometheus.CounterVec
	signalsRelayed     *prometheus.CounterVec
	chatMessagesTotal  prometheus.Counter
	storeWriteFailures *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics on a dedicated registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,

		// HTTP Request Metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		// WebSocket Metrics
		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"type", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"error"},
		),

		// Call Session Metrics
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of call rooms with at least one participant",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		callsDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Completed call duration in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		joinsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_joins_total",
				Help:        "Total number of accepted call joins",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"role"},
		),
		signalsRelayed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signals_relayed_total",
				Help:        "Total number of relayed signaling messages",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"kind"},
		),
		chatMessagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "chat_messages_total",
				Help:        "Total number of in-call chat messages",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		storeWriteFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "store_write_failures_total",
				Help:        "Total number of failed call record store writes",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"operation"},
		),
	}

	return m
}

// GetRegistry returns the registry backing these metrics for the /metrics endpoint
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// IncrementWebSocketConnections increments the active connection gauge
func (m *Metrics) IncrementWebSocketConnections() {
	m.websocketConnections.Inc()
}

// DecrementWebSocketConnections decrements the active connection gauge
func (m *Metrics) DecrementWebSocketConnections() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// Call Session Metrics Methods

// IncrementActiveCalls increments the active call gauge
func (m *Metrics) IncrementActiveCalls() {
	m.callsActive.Inc()
}

// DecrementActiveCalls decrements the active call gauge
func (m *Metrics) DecrementActiveCalls() {
	m.callsActive.Dec()
}

// RecordCallDuration records the duration of a completed call
func (m *Metrics) RecordCallDuration(duration time.Duration) {
	m.callsDuration.Observe(duration.Seconds())
}

// RecordJoin records an accepted join by role
func (m *Metrics) RecordJoin(role string) {
	m.joinsTotal.WithLabelValues(role).Inc()
}

// RecordSignalRelayed records a relayed signaling message by kind
func (m *Metrics) RecordSignalRelayed(kind string) {
	m.signalsRelayed.WithLabelValues(kind).Inc()
}

// RecordChatMessage records an in-call chat message
func (m *Metrics) RecordChatMessage() {
	m.chatMessagesTotal.Inc()
}

// RecordStoreWriteFailure records a failed call record store write
func (m *Metrics) RecordStoreWriteFailure(operation string) {
	m.storeWriteFailures.WithLabelValues(operation).Inc()
}
