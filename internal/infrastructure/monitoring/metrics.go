package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error kinds recorded by RecordClientError.
const (
	KindConnectivity = "connectivity"
	KindMalformed    = "malformed"
	KindHandler      = "handler"
	KindIdentity     = "identity"
	KindEncode       = "encode"
)

// Connection states exported by the connection gauge.
const (
	StateClosed     = 0
	StateConnecting = 1
	StateOpen       = 2
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Bus metrics
	MessagesIn      *prometheus.CounterVec
	MessagesOut     *prometheus.CounterVec
	Heartbeats      *prometheus.CounterVec
	DroppedEmits    *prometheus.CounterVec
	MalformedFrames prometheus.Counter
	HandlerFailures *prometheus.CounterVec
	ClientErrors    *prometheus.CounterVec
	ConnectionState prometheus.Gauge
	PendingRequests prometheus.Gauge
	RequestDuration *prometheus.HistogramVec

	// Hub HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Hub WebSocket and window metrics
	WSConnections prometheus.Gauge
	WindowsActive prometheus.Gauge
	WindowOps     *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for JSON API
type Snapshot struct {
	MessagesIn        int64   `json:"messages_in"`
	MessagesOut       int64   `json:"messages_out"`
	Dropped           int64   `json:"dropped"`
	Errors            int64   `json:"errors"`
	ActiveConnections int64   `json:"active_connections"`
	ActiveWindows     int64   `json:"active_windows"`
	ConnectionState   int     `json:"connection_state"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// Bus metrics
		MessagesIn: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowbus_messages_in_total",
				Help: "Envelopes received, by topic",
			},
			[]string{"topic"},
		),
		MessagesOut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowbus_messages_out_total",
				Help: "Envelopes sent, by topic",
			},
			[]string{"topic"},
		),
		Heartbeats: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowbus_heartbeats_total",
				Help: "Heartbeat frames, by direction and kind",
			},
			[]string{"direction", "kind"},
		),
		DroppedEmits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowbus_dropped_emits_total",
				Help: "Emits dropped before reaching the wire, by reason",
			},
			[]string{"reason"},
		),
		MalformedFrames: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "windowbus_malformed_frames_total",
				Help: "Inbound frames that could not be decoded",
			},
		),
		HandlerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowbus_handler_failures_total",
				Help: "Subscriber callbacks that panicked or returned an error",
			},
			[]string{"topic"},
		),
		ClientErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowbus_client_errors_total",
				Help: "Degraded client operations, by kind",
			},
			[]string{"kind"},
		),
		ConnectionState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "windowbus_connection_state",
				Help: "0 closed, 1 connecting, 2 open",
			},
		),
		PendingRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "windowbus_pending_requests",
				Help: "Requests awaiting a reply",
			},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "windowbus_request_duration_seconds",
				Help:    "Request/reply round trip in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"topic", "outcome"},
		),

		// Hub HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowbus_hub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "windowbus_hub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Hub WebSocket and window metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "windowbus_hub_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WindowsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "windowbus_hub_windows_active",
				Help: "Windows tracked by the hub registry",
			},
		),
		WindowOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowbus_hub_window_operations_total",
				Help: "Window manager operations, by operation and status",
			},
			[]string{"operation", "status"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "windowbus_uptime_seconds",
			Help: "Seconds since the metrics collector was created",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordMessageIn records an inbound envelope
func (m *Metrics) RecordMessageIn(topic string) {
	if m == nil {
		return
	}
	m.MessagesIn.WithLabelValues(topic).Inc()
	m.mu.Lock()
	m.snapshot.MessagesIn++
	m.mu.Unlock()
}

// RecordMessageOut records an outbound envelope
func (m *Metrics) RecordMessageOut(topic string) {
	if m == nil {
		return
	}
	m.MessagesOut.WithLabelValues(topic).Inc()
	m.mu.Lock()
	m.snapshot.MessagesOut++
	m.mu.Unlock()
}

// RecordHeartbeat records a heartbeat frame ("in"/"out", "ping"/"pong")
func (m *Metrics) RecordHeartbeat(direction, kind string) {
	if m == nil {
		return
	}
	m.Heartbeats.WithLabelValues(direction, kind).Inc()
}

// RecordDroppedEmit records an emit that never reached the wire
func (m *Metrics) RecordDroppedEmit(reason string) {
	if m == nil {
		return
	}
	m.DroppedEmits.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.Dropped++
	m.mu.Unlock()
}

// IncMalformedFrames records an undecodable inbound frame
func (m *Metrics) IncMalformedFrames() {
	if m == nil {
		return
	}
	m.MalformedFrames.Inc()
	m.RecordClientError(KindMalformed)
}

// RecordHandlerFailure records a failed subscriber callback
func (m *Metrics) RecordHandlerFailure(topic string) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(topic).Inc()
	m.RecordClientError(KindHandler)
}

// RecordClientError records a degraded client operation
func (m *Metrics) RecordClientError(kind string) {
	if m == nil {
		return
	}
	m.ClientErrors.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.Errors++
	m.mu.Unlock()
}

// SetConnectionState sets the connection state gauge
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
	m.mu.Lock()
	m.snapshot.ConnectionState = state
	m.mu.Unlock()
}

// SetPendingRequests sets the number of requests awaiting a reply
func (m *Metrics) SetPendingRequests(n int) {
	if m == nil {
		return
	}
	m.PendingRequests.Set(float64(n))
}

// RecordRequest records a request/reply round trip
func (m *Metrics) RecordRequest(topic, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(topic, outcome).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// SetWindowsActive sets the number of windows tracked by the hub
func (m *Metrics) SetWindowsActive(count int) {
	if m == nil {
		return
	}
	m.WindowsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveWindows = int64(count)
	m.mu.Unlock()
}

// RecordWindowOp records a window manager operation
func (m *Metrics) RecordWindowOp(operation, status string) {
	if m == nil {
		return
	}
	m.WindowOps.WithLabelValues(operation, status).Inc()
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
