// Package metrics provides Prometheus metrics for the client coordinator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for one agent instance
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics for the local status server
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestsInFlight prometheus.Gauge
	httpRequestDuration  *prometheus.HistogramVec

	// Chat connection metrics
	reconnectAttemptsTotal prometheus.Counter
	connectionState        prometheus.Gauge

	// Message reconciliation metrics
	messagesSentTotal   *prometheus.CounterVec
	messagesMergedTotal *prometheus.CounterVec
	messagesDeduped     prometheus.Counter
	reconcilePollsTotal *prometheus.CounterVec

	// Call metrics
	callsTotal          *prometheus.CounterVec
	callDurationSeconds prometheus.Histogram
	activeCalls         prometheus.Gauge

	// Signaling metrics
	signalingEventsTotal *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance with its own registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests handled by the status server",
				ConstLabels: constLabels,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being served",
			ConstLabels: constLabels,
		}),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency",
				ConstLabels: constLabels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		reconnectAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "chat_reconnect_attempts_total",
			Help:        "Total number of chat connection reconnect attempts",
			ConstLabels: constLabels,
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "chat_connection_state",
			Help:        "Chat connection state (0=disconnected, 1=connecting, 2=connected)",
			ConstLabels: constLabels,
		}),
		messagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "messages_sent_total",
				Help:        "Total messages sent, by write path and outcome",
				ConstLabels: constLabels,
			},
			[]string{"path", "outcome"},
		),
		messagesMergedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "messages_merged_total",
				Help:        "Total messages merged into timelines, by source",
				ConstLabels: constLabels,
			},
			[]string{"source"},
		),
		messagesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "messages_deduplicated_total",
			Help:        "Total incoming messages reconciled into an existing entry",
			ConstLabels: constLabels,
		}),
		reconcilePollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "reconcile_polls_total",
				Help:        "Total authoritative re-polls, by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total calls, by kind and outcome",
				ConstLabels: constLabels,
			},
			[]string{"kind", "outcome"},
		),
		callDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "call_duration_seconds",
			Help:        "Duration of completed calls",
			ConstLabels: constLabels,
			Buckets:     []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "active_calls",
			Help:        "Number of currently active call sessions",
			ConstLabels: constLabels,
		}),
		signalingEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_events_total",
				Help:        "Total signaling events, by direction and event name",
				ConstLabels: constLabels,
			},
			[]string{"direction", "event"},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestsInFlight,
		m.httpRequestDuration,
		m.reconnectAttemptsTotal,
		m.connectionState,
		m.messagesSentTotal,
		m.messagesMergedTotal,
		m.messagesDeduped,
		m.reconcilePollsTotal,
		m.callsTotal,
		m.callDurationSeconds,
		m.activeCalls,
		m.signalingEventsTotal,
	)

	return m
}

// GetRegistry returns the underlying Prometheus registry
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one handled HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() { m.httpRequestsInFlight.Inc() }

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() { m.httpRequestsInFlight.Dec() }

// RecordReconnectAttempt counts one chat reconnect attempt
func (m *Metrics) RecordReconnectAttempt() { m.reconnectAttemptsTotal.Inc() }

// SetConnectionState publishes the current chat connection state
func (m *Metrics) SetConnectionState(state float64) { m.connectionState.Set(state) }

// RecordMessageSent counts one send, path is "backend" or "realtime"
func (m *Metrics) RecordMessageSent(path, outcome string) {
	m.messagesSentTotal.WithLabelValues(path, outcome).Inc()
}

// RecordMessagesMerged counts messages merged from a source
func (m *Metrics) RecordMessagesMerged(source string, n int) {
	m.messagesMergedTotal.WithLabelValues(source).Add(float64(n))
}

// RecordMessageDeduplicated counts one reconciled duplicate
func (m *Metrics) RecordMessageDeduplicated() { m.messagesDeduped.Inc() }

// RecordReconcilePoll counts one poll, result is "changed" or "unchanged"
func (m *Metrics) RecordReconcilePoll(result string) {
	m.reconcilePollsTotal.WithLabelValues(result).Inc()
}

// RecordCall counts one completed call and its duration
func (m *Metrics) RecordCall(kind, outcome string, duration time.Duration) {
	m.callsTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == "completed" {
		m.callDurationSeconds.Observe(duration.Seconds())
	}
}

// IncrementActiveCalls increments the active call gauge
func (m *Metrics) IncrementActiveCalls() { m.activeCalls.Inc() }

// DecrementActiveCalls decrements the active call gauge
func (m *Metrics) DecrementActiveCalls() { m.activeCalls.Dec() }

// RecordSignalingEvent counts one signaling event, direction is "in" or "out"
func (m *Metrics) RecordSignalingEvent(direction, event string) {
	m.signalingEventsTotal.WithLabelValues(direction, event).Inc()
}
