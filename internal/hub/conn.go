package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
)

const (
	sendBuffer   = 256
	pongWait     = 90 * time.Second
	closeTimeout = time.Second
)

// Conn is one window socket.
type Conn struct {
	session  string
	windowID string

	hub    *Hub
	ws     *websocket.Conn
	logger *zap.Logger

	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

func newConn(h *Hub, ws *websocket.Conn, session, windowID string) *Conn {
	return &Conn{
		session:  session,
		windowID: windowID,
		hub:      h,
		ws:       ws,
		logger: h.logger.With(
			zap.String("session_id", session),
			zap.String("window_id", windowID)),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Session returns the session the socket connected with.
func (c *Conn) Session() string { return c.session }

// WindowID returns the window the socket connected with.
func (c *Conn) WindowID() string { return c.windowID }

// Send queues a frame. A full queue drops the frame rather than stall the
// sender.
func (c *Conn) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("send queue full, dropping frame")
		return false
	}
}

// Close signals both pumps to stop. Safe to call more than once.
func (c *Conn) Close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// writePump owns every write to the socket.
func (c *Conn) writePump(heartbeat, writeTimeout time.Duration) {
	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.ws.Close()

	write := func(data []byte) error {
		if writeTimeout > 0 {
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		return c.ws.WriteMessage(websocket.TextMessage, data)
	}

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeTimeout))
			return

		case data := <-c.send:
			if err := write(data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}

		case <-tick:
			if err := write(envelope.Ping()); err != nil {
				c.Close()
				return
			}
			c.hub.metrics.RecordHeartbeat("out", "ping")
		}
	}
}

// readPump reads until the socket fails, then unregisters the connection.
func (c *Conn) readPump(readLimit int64) {
	defer func() {
		c.hub.unregister(c)
		c.Close()
	}()

	if readLimit > 0 {
		c.ws.SetReadLimit(readLimit)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}
		// Any frame proves the peer is alive.
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		c.hub.handleFrame(c, data)
	}
}
