package hub

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

const windowTopicPrefix = "wm.window."

var (
	errWindowIDRequired = errors.New("window_id is required")
	errUnknownWindow    = errors.New("window not found")
	errGeometryRequired = errors.New("geometry is required")
)

// reply is a window manager answer before it is wrapped in an envelope.
type reply struct {
	topic   string
	payload map[string]any
}

func failed(windowID, operation string, err error) reply {
	return reply{topic: types.TopicOperationFailed, payload: map[string]any{
		types.KeyWindowID:  windowID,
		types.KeyOperation: operation,
		types.KeyError:     err.Error(),
		types.KeySuccess:   false,
	}}
}

// windowCommand services one wm.window.* command. It returns false for
// topics that are not commands, such as confirmations relayed by a host.
func (h *Hub) windowCommand(c *Conn, e *envelope.Envelope) (reply, bool) {
	op := strings.TrimPrefix(e.Topic, windowTopicPrefix)

	var r reply
	switch e.Topic {
	case types.TopicOpen:
		w := h.windows.Open(c.session, e.Get(types.KeyAddon).String())
		r = reply{topic: types.TopicOpened, payload: map[string]any{
			types.KeyWindowID: w.WindowID,
			types.KeyAddon:    w.Addon,
			types.KeySuccess:  true,
		}}

	case types.TopicListAll:
		r = reply{topic: types.TopicListed, payload: map[string]any{
			types.KeyWindows: h.windows.List(),
		}}

	case types.TopicListBySession:
		session := e.Get(types.KeySessionID).String()
		if session == "" {
			session = c.session
		}
		r = reply{topic: types.TopicListed, payload: map[string]any{
			types.KeyWindows: h.windows.ListBySession(session),
		}}

	case types.TopicGetState:
		r = h.withWindow(e, op, func(windowID string) reply {
			w, ok := h.windows.Get(windowID)
			if !ok {
				return failed(windowID, op, errUnknownWindow)
			}
			return reply{topic: types.TopicState, payload: map[string]any{
				types.KeyWindowID: windowID,
				types.KeySuccess:  true,
				types.KeyState:    w.State,
			}}
		})

	case types.TopicClose:
		r = h.withWindow(e, op, func(windowID string) reply {
			if !h.windows.Close(windowID) {
				return failed(windowID, op, errUnknownWindow)
			}
			return confirmed(types.TopicClosed, windowID)
		})

	default:
		confirm, ok := types.LifecycleReplies[e.Topic]
		if !ok {
			return reply{}, false
		}
		r = h.withWindow(e, op, func(windowID string) reply {
			return h.lifecycle(e, op, confirm, windowID)
		})
	}

	status := "success"
	if r.topic == types.TopicOperationFailed {
		status = "failed"
		c.logger.Warn("window operation failed",
			zap.String("operation", op),
			zap.Any("error", r.payload[types.KeyError]))
	}
	h.metrics.RecordWindowOp(op, status)
	return r, true
}

func (h *Hub) withWindow(e *envelope.Envelope, op string, fn func(windowID string) reply) reply {
	wid := e.Get(types.KeyWindowID)
	if wid.Type != gjson.String || wid.Str == "" {
		return failed("", op, errWindowIDRequired)
	}
	return fn(wid.Str)
}

func (h *Hub) lifecycle(e *envelope.Envelope, op, confirm, windowID string) reply {
	var mutate func(*types.WindowState)
	extra := map[string]any{}

	switch e.Topic {
	case types.TopicMinimize:
		mutate = func(s *types.WindowState) { s.Status = types.StatusMinimized }
	case types.TopicMaximize:
		mutate = func(s *types.WindowState) { s.Status = types.StatusMaximized }
	case types.TopicRestore:
		mutate = func(s *types.WindowState) { s.Status = types.StatusNormal }
	case types.TopicHide:
		mutate = func(s *types.WindowState) { s.Visible = false }
	case types.TopicShow:
		mutate = func(s *types.WindowState) { s.Visible = true }
	case types.TopicMove:
		pos := e.Get(types.KeyPosition)
		if !pos.IsObject() {
			return failed(windowID, op, errGeometryRequired)
		}
		p := types.WindowPosition{X: int(pos.Get("x").Int()), Y: int(pos.Get("y").Int())}
		mutate = func(s *types.WindowState) { s.Position = &p }
		extra[types.KeyPosition] = p
	case types.TopicResize:
		size := e.Get(types.KeySize)
		if !size.IsObject() {
			return failed(windowID, op, errGeometryRequired)
		}
		sz := types.WindowSize{Width: int(size.Get("width").Int()), Height: int(size.Get("height").Int())}
		mutate = func(s *types.WindowState) { s.Size = &sz }
		extra[types.KeySize] = sz
	}

	if _, ok := h.windows.Update(windowID, mutate); !ok {
		return failed(windowID, op, errUnknownWindow)
	}
	r := confirmed(confirm, windowID)
	for k, v := range extra {
		r.payload[k] = v
	}
	return r
}

func confirmed(topic, windowID string) reply {
	return reply{topic: topic, payload: map[string]any{
		types.KeyWindowID: windowID,
		types.KeySuccess:  true,
	}}
}

// reply answers request e to every socket of the requesting session.
func (h *Hub) reply(c *Conn, e *envelope.Envelope, r reply) {
	fields := envelope.Fields{
		Topic:   r.topic,
		Payload: r.payload,
		Source:  envelope.Source{SessionID: c.session, WindowID: h.id},
		ReplyTo: &e.MessageID,
	}
	if e.Context != nil {
		fields.Context = *e.Context
	}

	data, err := envelope.Encode(fields)
	if err != nil {
		h.metrics.RecordClientError(monitoring.KindEncode)
		c.logger.Error("failed to encode reply", zap.String("topic", r.topic), zap.Error(err))
		return
	}

	n := h.toSession(c.session, data, nil)
	h.metrics.RecordMessageOut(r.topic)
	c.logger.Debug("replied",
		zap.String("topic", r.topic),
		zap.String("reply_to", e.MessageID),
		zap.Int("delivered", n))
}
