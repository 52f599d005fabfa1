// Package emitter builds outbound envelopes and hands them to the transport.
//
// Emit is fire-and-forget: a disconnected socket drops the message with a
// warning, and encode or write failures are logged, never returned. Callers
// that need delivery guarantees correlate replies over reply_to themselves
// (see bus.Request).
package emitter

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/identity"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
)

// Drop reasons recorded on the dropped-emit counter.
const (
	DropNotConnected = "not_connected"
	DropEncode       = "encode"
	DropSend         = "send"
)

// Sender is the write side of the transport.
type Sender interface {
	Connected() bool
	Send(data []byte) error
}

// ContextSource supplies the stored context, merged with a per-call patch.
type ContextSource interface {
	Merge(patch envelope.ContextPatch) envelope.Context
}

// SourceOverride redirects the source block (power routing). A nil field
// falls back to the local identity.
type SourceOverride struct {
	Addon     *string
	SessionID *string
	WindowID  *string
	User      *envelope.User
}

// Options are the optional parts of an emit.
type Options struct {
	Payload any
	// Context patches the stored context; nil sends it verbatim.
	Context envelope.ContextPatch
	User    *envelope.User
	ReplyTo *string
	Source  *SourceOverride
}

// Emitter sends envelopes on behalf of one window.
type Emitter struct {
	sender   Sender
	contexts ContextSource
	identity identity.Identity
	user     *envelope.User
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// New creates an emitter. user is the local user and may be nil.
func New(sender Sender, contexts ContextSource, ident identity.Identity, user *envelope.User, logger *zap.Logger, metrics *monitoring.Metrics) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		sender:   sender,
		contexts: contexts,
		identity: ident,
		user:     user,
		logger:   logger.Named("emitter"),
		metrics:  metrics,
	}
}

// Emit sends topic and returns the message id, or "" if nothing was sent.
func (e *Emitter) Emit(topic string, opts Options) string {
	if e.sender == nil || !e.sender.Connected() {
		e.metrics.RecordDroppedEmit(DropNotConnected)
		e.metrics.RecordClientError(monitoring.KindConnectivity)
		e.logger.Warn("socket not connected, dropping emit", zap.String("topic", topic))
		return ""
	}

	fields := envelope.Fields{
		Topic:   topic,
		Payload: opts.Payload,
		Context: e.context(opts.Context),
		Source:  e.source(topic, opts),
		User:    e.envelopeUser(opts.User),
		ReplyTo: opts.ReplyTo,
	}

	env, err := envelope.Build(fields)
	if err == nil {
		var data []byte
		if data, err = envelope.Marshal(env); err == nil {
			return e.send(env, data)
		}
	}

	e.metrics.RecordDroppedEmit(DropEncode)
	e.metrics.RecordClientError(monitoring.KindEncode)
	e.logger.Error("failed to encode envelope", zap.String("topic", topic), zap.Error(err))
	return ""
}

func (e *Emitter) send(env *envelope.Envelope, data []byte) string {
	if err := e.sender.Send(data); err != nil {
		e.metrics.RecordDroppedEmit(DropSend)
		e.logger.Warn("failed to send envelope",
			zap.String("topic", env.Topic),
			zap.String("message_id", env.MessageID),
			zap.Error(err))
		return ""
	}

	e.metrics.RecordMessageOut(env.Topic)
	e.logger.Debug("emitted",
		zap.String("topic", env.Topic),
		zap.String("message_id", env.MessageID))
	return env.MessageID
}

func (e *Emitter) context(patch envelope.ContextPatch) envelope.Context {
	if e.contexts == nil {
		return envelope.Context{}.Apply(patch)
	}
	return e.contexts.Merge(patch)
}

func (e *Emitter) envelopeUser(explicit *envelope.User) *envelope.User {
	if explicit != nil {
		return explicit
	}
	return e.user
}

// source builds the advisory source block. Without an override it carries
// the local identity; with one, each field falls back independently.
func (e *Emitter) source(topic string, opts Options) envelope.Source {
	local := envelope.Source{
		Addon:     e.identity.Addon,
		SessionID: e.identity.Session,
		WindowID:  e.identity.WindowID,
		User:      e.user,
	}
	o := opts.Source
	if o == nil {
		return local
	}

	src := local
	if o.Addon != nil {
		src.Addon = *o.Addon
	}
	if o.SessionID != nil {
		src.SessionID = *o.SessionID
	}
	if o.WindowID != nil {
		src.WindowID = *o.WindowID
	}
	switch {
	case o.User != nil:
		src.User = o.User
	case e.user != nil:
		src.User = e.user
	default:
		src.User = opts.User
	}

	e.logger.Info("emitting with source override",
		zap.Bool("power_routing", true),
		zap.String("topic", topic),
		zap.String("addon", src.Addon),
		zap.String("session_id", src.SessionID),
		zap.String("window_id", src.WindowID))
	return src
}
