package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
)

var (
	ErrNotConnected = errors.New("socket not connected")
	ErrClosed       = errors.New("handle closed")
)

// State is the lifecycle state of a handle.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const maxLoggedFrame = 512

// Handle owns one socket. It moves connecting -> open -> closed and never
// goes back; reconnecting means a new Handle.
type Handle struct {
	url     string
	m       *Manager
	logger  *zap.Logger
	metrics *monitoring.Metrics

	state     atomic.Int32
	connected atomic.Bool

	writeMu sync.Mutex
	conn    *websocket.Conn

	ctx        context.Context
	cancel     context.CancelFunc
	openCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once
	closedByUs atomic.Bool

	errMu sync.Mutex
	err   error
}

func newHandle(m *Manager, url string) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		url:     url,
		m:       m,
		logger:  m.logger.With(zap.String("url", url)),
		metrics: m.metrics,
		ctx:     ctx,
		cancel:  cancel,
		openCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	h.state.Store(int32(StateConnecting))
	return h
}

// URL returns the connection URI.
func (h *Handle) URL() string { return h.url }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Connected reports whether the socket is open and has not failed.
func (h *Handle) Connected() bool { return h.connected.Load() }

// Done is closed once the handle has fully shut down.
func (h *Handle) Done() <-chan struct{} { return h.doneCh }

// Err returns the error that ended the handle, if any.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// WaitOpen blocks until the socket is open, the handle ends, or ctx is done.
func (h *Handle) WaitOpen(ctx context.Context) error {
	select {
	case <-h.openCh:
		return nil
	case <-h.doneCh:
		if err := h.Err(); err != nil {
			return err
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes one text frame. Writes from concurrent goroutines are
// serialized. A failed write marks the handle disconnected and tears the
// socket down.
func (h *Handle) Send(data []byte) error {
	if !h.connected.Load() {
		return ErrNotConnected
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	// Close may have won the lock first.
	if !h.connected.Load() {
		return ErrNotConnected
	}
	if h.m.writeTimeout > 0 {
		_ = h.conn.SetWriteDeadline(time.Now().Add(h.m.writeTimeout))
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.connected.Store(false)
		h.fail(fmt.Errorf("write: %w", err))
		_ = h.conn.Close()
		return err
	}
	return nil
}

// Close shuts the handle down without waiting. Use Done to wait.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.closedByUs.Store(true)
		h.cancel()

		h.writeMu.Lock()
		h.connected.Store(false)
		h.state.Store(int32(StateClosed))
		conn := h.conn
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
		h.writeMu.Unlock()
	})
}

// run dials, then reads until the socket ends. Inbound envelopes are
// delivered from this goroutine only, which keeps per-connection order.
func (h *Handle) run() {
	defer close(h.doneCh)
	defer h.cancel()

	h.reportState(monitoring.StateConnecting)

	conn, err := h.dial()
	if err != nil {
		h.finish(err)
		return
	}

	h.writeMu.Lock()
	if h.closedByUs.Load() {
		h.writeMu.Unlock()
		_ = conn.Close()
		h.finish(nil)
		return
	}
	if h.m.readLimit > 0 {
		conn.SetReadLimit(h.m.readLimit)
	}
	h.conn = conn
	h.state.Store(int32(StateOpen))
	h.connected.Store(true)
	h.writeMu.Unlock()

	close(h.openCh)
	h.reportState(monitoring.StateOpen)
	h.logger.Info("socket open")
	if cb := h.m.callbacks.OnOpen; cb != nil {
		cb()
	}

	var wg sync.WaitGroup
	if h.m.heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.heartbeatLoop()
		}()
	}

	err = h.readLoop(conn)
	h.cancel()
	wg.Wait()
	h.finish(err)
}

func (h *Handle) dial() (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := h.m.breaker.Execute(h.ctx, func(ctx context.Context) error {
		c, resp, err := h.m.dialer.DialContext(ctx, h.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", h.url, err)
	}
	return conn, nil
}

func (h *Handle) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		h.handleFrame(data)
	}
}

func (h *Handle) handleFrame(data []byte) {
	frame := envelope.Decode(data)
	switch frame.Kind {
	case envelope.KindHeartbeat:
		if frame.Heartbeat.Ping {
			h.metrics.RecordHeartbeat("in", "ping")
			if err := h.Send(envelope.Pong()); err == nil {
				h.metrics.RecordHeartbeat("out", "pong")
			}
		}
		if frame.Heartbeat.Pong {
			h.metrics.RecordHeartbeat("in", "pong")
		}

	case envelope.KindMalformed:
		h.metrics.IncMalformedFrames()
		h.logger.Warn("dropping malformed frame",
			zap.Error(frame.Err),
			zap.ByteString("raw", truncate(data, maxLoggedFrame)))

	case envelope.KindEnvelope:
		h.metrics.RecordMessageIn(frame.Envelope.Topic)
		if cb := h.m.callbacks.OnMessage; cb != nil {
			cb(frame.Envelope)
		}
	}
}

func (h *Handle) heartbeatLoop() {
	ticker := time.NewTicker(h.m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if err := h.Send(envelope.Ping()); err != nil {
				return
			}
			h.metrics.RecordHeartbeat("out", "ping")
		}
	}
}

// finish records the terminal state and fires callbacks exactly once.
func (h *Handle) finish(err error) {
	h.connected.Store(false)
	h.state.Store(int32(StateClosed))
	h.reportState(monitoring.StateClosed)

	if h.closedByUs.Load() {
		err = nil
	}
	if err != nil {
		h.fail(err)
	}

	h.logger.Info("socket closed", zap.Error(err))
	if cb := h.m.callbacks.OnClose; cb != nil {
		cb(err)
	}
}

// reportState updates the connection gauge while h is the manager's
// current handle. A replaced handle finishing late must not overwrite the
// state of its successor.
func (h *Handle) reportState(state int) {
	if h.m.Handle() != h {
		return
	}
	h.metrics.SetConnectionState(state)
}

// fail records err and reports it through OnError.
func (h *Handle) fail(err error) {
	h.errMu.Lock()
	first := h.err == nil
	if first {
		h.err = err
	}
	h.errMu.Unlock()
	if !first {
		return
	}

	h.metrics.RecordClientError(monitoring.KindConnectivity)
	h.logger.Warn("socket error", zap.Error(err))
	if cb := h.m.callbacks.OnError; cb != nil {
		cb(err)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
