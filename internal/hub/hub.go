// Package hub is a reference hub for window buses.
//
// It terminates window sockets, answers heartbeats and services the
// wm.window.* topics against an in-memory window registry. Every other
// envelope is forwarded to the sender's session, or to a single window when
// the sender names one in source.window_id. The hub is a development and
// test counterpart, not an authentication boundary.
package hub

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/domain/window"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/id"
)

const maxLoggedFrame = 512

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Windows load from file:// and custom schemes
	},
}

// Hub routes envelopes between window sockets
type Hub struct {
	id      string
	windows *window.Manager
	logger  *zap.Logger
	metrics *monitoring.Metrics

	heartbeat    time.Duration
	writeTimeout time.Duration
	readLimit    int64

	mu       sync.RWMutex
	sessions map[string]map[*Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// New creates a hub. Socket timings come from the transport config.
func New(windows *window.Manager, cfg config.TransportConfig, logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windows == nil {
		windows = window.NewManager().WithMetrics(metrics)
	}
	return &Hub{
		id:           id.NewHubID(),
		windows:      windows,
		logger:       logger.Named("hub"),
		metrics:      metrics,
		heartbeat:    cfg.HeartbeatInterval,
		writeTimeout: cfg.WriteTimeout,
		readLimit:    cfg.ReadLimit,
		sessions:     make(map[string]map[*Conn]struct{}),
	}
}

// ID returns the hub's own id, used as source.window_id on replies.
func (h *Hub) ID() string { return h.id }

// Windows returns the window registry.
func (h *Hub) Windows() *window.Manager { return h.windows }

// HandleConnection upgrades /ws and serves the socket until it closes
func (h *Hub) HandleConnection(c *gin.Context) {
	session := c.Query("session_id")
	if session == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	windowID := c.Query("window_id")
	if windowID == "" {
		windowID = id.NewFallbackWindowID()
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(h, ws, session, windowID)
	if !h.register(conn) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub shutting down"),
			time.Now().Add(closeTimeout))
		_ = ws.Close()
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		conn.writePump(h.heartbeat, h.writeTimeout)
	}()
	conn.readPump(h.readLimit)
}

func (h *Hub) register(c *Conn) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	conns, ok := h.sessions[c.session]
	if !ok {
		conns = make(map[*Conn]struct{})
		h.sessions[c.session] = conns
	}
	conns[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.metrics.IncWSConnections()
	if h.windows.Attach(c.session, c.windowID) {
		c.logger.Debug("window attached")
	}
	c.logger.Info("window connected")
	return true
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	conns, ok := h.sessions[c.session]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.sessions, c.session)
	}
	stillOpen := h.windowOpenLocked(c.windowID)
	h.mu.Unlock()

	if !stillOpen {
		h.windows.Detach(c.windowID)
	}
	h.metrics.DecWSConnections()
	h.wg.Done()
	c.logger.Info("window disconnected")
}

// windowOpenLocked reports whether any socket still serves windowID.
func (h *Hub) windowOpenLocked(windowID string) bool {
	for _, conns := range h.sessions {
		for c := range conns {
			if c.windowID == windowID {
				return true
			}
		}
	}
	return false
}

// ConnectionCount returns the number of live sockets
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.sessions {
		n += len(conns)
	}
	return n
}

// SessionCount returns the number of sessions with a live socket
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every socket and waits for their goroutines
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Conn
	for _, conns := range h.sessions {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	h.wg.Wait()
	h.logger.Info("hub closed")
}

func (h *Hub) handleFrame(c *Conn, data []byte) {
	frame := envelope.Decode(data)
	switch frame.Kind {
	case envelope.KindHeartbeat:
		if frame.Heartbeat.Ping {
			h.metrics.RecordHeartbeat("in", "ping")
			if c.Send(envelope.Pong()) {
				h.metrics.RecordHeartbeat("out", "pong")
			}
		}
		if frame.Heartbeat.Pong {
			h.metrics.RecordHeartbeat("in", "pong")
		}

	case envelope.KindMalformed:
		h.metrics.IncMalformedFrames()
		raw := data
		if len(raw) > maxLoggedFrame {
			raw = raw[:maxLoggedFrame]
		}
		c.logger.Warn("dropping malformed frame", zap.Error(frame.Err), zap.ByteString("raw", raw))

	case envelope.KindEnvelope:
		h.metrics.RecordMessageIn(frame.Envelope.Topic)
		h.route(c, frame.Envelope)
	}
}

func (h *Hub) route(c *Conn, e *envelope.Envelope) {
	if strings.HasPrefix(e.Topic, windowTopicPrefix) {
		if r, ok := h.windowCommand(c, e); ok {
			h.reply(c, e, r)
			return
		}
	}
	h.forward(c, e)
}

// forward relays e with an authoritative source. A source.window_id that
// is not the sender's own addresses that window only.
func (h *Hub) forward(c *Conn, e *envelope.Envelope) {
	target := e.SourceWindow()

	fwd := *e
	src := envelope.Source{SessionID: c.session, WindowID: c.windowID}
	if e.Source != nil {
		src.Addon = e.Source.Addon
		src.User = e.Source.User
	}
	fwd.Source = &src

	data, err := envelope.Marshal(&fwd)
	if err != nil {
		h.metrics.RecordClientError(monitoring.KindEncode)
		c.logger.Error("failed to encode forwarded envelope", zap.String("topic", e.Topic), zap.Error(err))
		return
	}

	if target != "" && target != c.windowID {
		n := h.toWindow(target, data)
		c.logger.Info("routed to window",
			zap.Bool("power_routing", true),
			zap.String("topic", e.Topic),
			zap.String("target", target),
			zap.Int("delivered", n))
		return
	}
	h.toSession(c.session, data, c)
}

// toSession sends data to every socket of session except skip.
func (h *Hub) toSession(session string, data []byte, skip *Conn) int {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.sessions[session]))
	for c := range h.sessions[session] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, data)
}

// toWindow sends data to every socket serving windowID.
func (h *Hub) toWindow(windowID string, data []byte) int {
	h.mu.RLock()
	var targets []*Conn
	for _, conns := range h.sessions {
		for c := range conns {
			if c.windowID == windowID {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, data)
}

func (h *Hub) deliver(targets []*Conn, data []byte) int {
	n := 0
	for _, c := range targets {
		if c.Send(data) {
			n++
		}
	}
	return n
}
