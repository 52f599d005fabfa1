package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/emitter"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/router"
)

// Request outcomes recorded on the request histogram.
const (
	OutcomeReply    = "reply"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"
	OutcomeDropped  = "dropped"
	OutcomeClosed   = "closed"
)

// RequestOptions tune a single request.
type RequestOptions struct {
	// ResponseTopic is the topic the reply arrives on. Defaults to the
	// request topic.
	ResponseTopic string

	// Timeout overrides the configured request timeout.
	Timeout time.Duration

	// MatchWindow also accepts a reply whose source.window_id is this
	// window, for hubs that do not echo reply_to.
	MatchWindow bool
}

// Request emits topic and waits for the first envelope on the response
// topic that answers it. The subscription is removed before returning.
func (b *Bus) Request(ctx context.Context, topic string, opts emitter.Options, ropts RequestOptions) (*envelope.Envelope, error) {
	limit := int64(b.cfg.Request.MaxPending)
	if n := b.pending.Add(1); limit > 0 && n > limit {
		b.pending.Add(-1)
		return nil, ErrTooManyPending
	}
	defer func() {
		b.metrics.SetPendingRequests(int(b.pending.Add(-1)))
	}()
	b.metrics.SetPendingRequests(int(b.pending.Load()))

	if !b.Connected() {
		return nil, ErrNotConnected
	}

	timeout := ropts.Timeout
	if timeout <= 0 {
		timeout = b.cfg.Request.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	responseTopic := ropts.ResponseTopic
	if responseTopic == "" {
		responseTopic = topic
	}

	// The id is assigned under mu, so a reply racing the return of Emit
	// waits for it instead of being missed.
	var (
		mu        sync.Mutex
		requestID string
		replies   = make(chan *envelope.Envelope, 1)
	)
	unsubscribe := b.router.On(responseTopic, router.Func(func(e *envelope.Envelope) error {
		mu.Lock()
		id := requestID
		mu.Unlock()

		if id == "" || e.MessageID == id {
			return nil
		}
		if !e.IsReplyTo(id) && !(ropts.MatchWindow && e.SourceWindow() == b.identity.WindowID) {
			return nil
		}
		select {
		case replies <- e:
		default:
		}
		return nil
	}))
	defer unsubscribe()

	timer := monitoring.NewTimer(b.metrics, topic)
	mu.Lock()
	requestID = b.emitter.Emit(topic, opts)
	id := requestID
	mu.Unlock()

	if id == "" {
		timer.Stop(OutcomeDropped)
		return nil, ErrNotConnected
	}

	select {
	case e := <-replies:
		timer.Stop(OutcomeReply)
		return e, nil
	case <-b.done:
		timer.Stop(OutcomeClosed)
		return nil, ErrClosed
	case <-ctx.Done():
		outcome := OutcomeCanceled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		timer.Stop(outcome)
		b.logger.Warn("request ended without reply",
			zap.String("topic", topic),
			zap.String("message_id", id),
			zap.String("outcome", outcome))
		return nil, ctx.Err()
	}
}

// PendingRequests returns the number of requests in flight.
func (b *Bus) PendingRequests() int {
	return int(b.pending.Load())
}
