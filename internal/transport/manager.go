// Package transport owns the single socket a window uses to talk to the hub.
//
// Manager keeps one Handle and hands the same one back while it is
// connecting or open, so re-initialising a window never opens a duplicate
// socket. Connect never blocks: the dial runs in the background and
// Handle.WaitOpen is there for callers that need to wait.
package transport

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/resilience"
)

// Callbacks receive socket events. All are optional. OnMessage runs on the
// read goroutine in receive order.
type Callbacks struct {
	OnOpen    func()
	OnClose   func(err error)
	OnError   func(err error)
	OnMessage func(*envelope.Envelope)
}

// Manager owns the window's transport handle.
type Manager struct {
	host         string
	path         string
	writeTimeout time.Duration
	readLimit    int64
	heartbeat    time.Duration

	dialer    *websocket.Dialer
	breaker   *resilience.Breaker
	callbacks Callbacks
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu     sync.Mutex
	handle *Handle
}

// NewManager creates a transport manager.
func NewManager(cfg config.TransportConfig, callbacks Callbacks, logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("transport")

	return &Manager{
		host:         cfg.Host,
		path:         cfg.Path,
		writeTimeout: cfg.WriteTimeout,
		readLimit:    cfg.ReadLimit,
		heartbeat:    cfg.HeartbeatInterval,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		breaker:   resilience.ForDial("hub-dial", cfg.BreakerFailures, cfg.BreakerTimeout, logger),
		callbacks: callbacks,
		logger:    logger,
		metrics:   metrics,
	}
}

// Connect returns the live handle, or starts a new one if there is none or
// the previous one is closed.
func (m *Manager) Connect(session, windowID string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil && m.handle.State() != StateClosed {
		return m.handle
	}

	h := newHandle(m, BuildURL(m.host, m.path, session, windowID))
	m.handle = h
	m.logger.Debug("connecting",
		zap.String("session_id", session),
		zap.String("window_id", windowID))
	go h.run()
	return h
}

// Handle returns the current handle, which may be nil or closed.
func (m *Manager) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Connected reports whether the current handle is open.
func (m *Manager) Connected() bool {
	h := m.Handle()
	return h != nil && h.Connected()
}

// Send writes to the current handle.
func (m *Manager) Send(data []byte) error {
	h := m.Handle()
	if h == nil {
		return ErrNotConnected
	}
	return h.Send(data)
}

// Breaker exposes the dial breaker for status reporting.
func (m *Manager) Breaker() *resilience.Breaker {
	return m.breaker
}

// Close closes the current handle without waiting.
func (m *Manager) Close() {
	if h := m.Handle(); h != nil {
		h.Close()
	}
}

// BuildURL returns ws://host/path?session_id=..&window_id=..; host may
// carry its own ws:// or wss:// scheme.
func BuildURL(host, path, session, windowID string) string {
	u := url.URL{Scheme: "ws", Host: host, Path: path}
	if i := strings.Index(host, "://"); i > 0 {
		u.Scheme, u.Host = host[:i], host[i+3:]
	}
	if u.Path == "" {
		u.Path = "/ws"
	}
	u.RawQuery = url.Values{
		"session_id": {session},
		"window_id":  {windowID},
	}.Encode()
	return u.String()
}
