// Package router maps topics to subscriber handlers and dispatches inbound
// envelopes to them.
//
// Each topic holds an ordered set of handlers: registering the same handler
// twice is a no-op, handlers fire in registration order, and removing the
// last handler deletes the topic. A failing handler is logged and counted;
// it never stops its siblings and never reaches the transport read loop.
package router

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
)

// Handler handles envelopes for a topic. Implementations must have an
// identity the router can recognise on a repeated registration: a pointer,
// a map, or a struct whose fields compare without panicking. Others are
// refused by On.
type Handler interface {
	Handle(e *envelope.Envelope) error
}

// HandlerFunc is the function form of a handler.
type HandlerFunc func(e *envelope.Envelope) error

// funcHandler gives a function a stable identity.
type funcHandler struct {
	fn HandlerFunc
}

func (f *funcHandler) Handle(e *envelope.Envelope) error {
	return f.fn(e)
}

// Func wraps fn in a handler with pointer identity. Keep the returned value
// to pass to Off later.
func Func(fn HandlerFunc) Handler {
	return &funcHandler{fn: fn}
}

// Router dispatches envelopes by topic.
type Router struct {
	mu     sync.RWMutex
	topics map[string][]Handler

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates an empty router.
func New(logger *zap.Logger, metrics *monitoring.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		topics:  make(map[string][]Handler),
		logger:  logger.Named("router"),
		metrics: metrics,
	}
}

// On registers h under topic and returns a function that removes it.
// Registering the same handler again does nothing.
func (r *Router) On(topic string, h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	if !identifiable(h) {
		r.logger.Warn("refusing handler without identity",
			zap.String("topic", topic),
			zap.String("type", reflect.TypeOf(h).String()))
		return func() {}
	}

	r.mu.Lock()
	if indexOf(r.topics[topic], h) < 0 {
		r.topics[topic] = append(r.topics[topic], h)
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.Off(topic, h) })
	}
}

// Off removes h from topic. The topic entry disappears with its last handler.
func (r *Router) Off(topic string, h Handler) {
	if h == nil || !identifiable(h) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := r.topics[topic]
	i := indexOf(handlers, h)
	if i < 0 {
		return
	}
	if len(handlers) == 1 {
		delete(r.topics, topic)
		return
	}
	next := make([]Handler, 0, len(handlers)-1)
	next = append(next, handlers[:i]...)
	next = append(next, handlers[i+1:]...)
	r.topics[topic] = next
}

// Dispatch delivers e to every handler of its topic, in registration order.
// The handler list is snapshotted first, so handlers may subscribe,
// unsubscribe or emit freely.
func (r *Router) Dispatch(e *envelope.Envelope) {
	if e == nil {
		return
	}

	r.mu.RLock()
	handlers := r.topics[e.Topic]
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.logger.Debug("no handlers for topic", zap.String("topic", e.Topic))
		return
	}

	for _, h := range handlers {
		r.invoke(h, e)
	}
}

// Topics returns the subscribed topics, sorted.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.topics))
	for t := range r.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// HandlerCount returns the number of handlers on topic.
func (r *Router) HandlerCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

func (r *Router) invoke(h Handler, e *envelope.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.report(e, fmt.Errorf("handler panic: %v", rec), zap.ByteString("stack", debug.Stack()))
		}
	}()

	if err := h.Handle(e); err != nil {
		r.report(e, err)
	}
}

func (r *Router) report(e *envelope.Envelope, err error, fields ...zap.Field) {
	r.metrics.RecordHandlerFailure(e.Topic)
	r.logger.Error("handler failed", append([]zap.Field{
		zap.String("topic", e.Topic),
		zap.String("message_id", e.MessageID),
		zap.Error(err),
	}, fields...)...)
}

// identifiable reports whether h can be matched against other handlers.
// A comparable struct may still hold a func in an interface field, so the
// comparison itself is tried.
func identifiable(h Handler) (ok bool) {
	t := reflect.TypeOf(h)
	if t.Kind() == reflect.Map {
		return true
	}
	if !t.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	other := h
	return h == other
}

func sameHandler(a, b Handler) (same bool) {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Kind() == reflect.Map {
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func indexOf(handlers []Handler, h Handler) int {
	for i, existing := range handlers {
		if sameHandler(existing, h) {
			return i
		}
	}
	return -1
}
