// Package windowsync mirrors hub window-manager confirmations into local UI
// state.
//
// A shared socket may carry lifecycle events meant for other windows, so
// every handler first checks that payload.window_id names this window and
// that payload.success is true. Anything else is ignored silently.
package windowsync

import (
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/emitter"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/router"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

// Emitter sends commands to the hub.
type Emitter interface {
	Emit(topic string, opts emitter.Options) string
}

// Subscriber is the registration side of the router.
type Subscriber interface {
	On(topic string, h router.Handler) (unsubscribe func())
}

// Sync owns the window lifecycle subscriptions of one window.
type Sync struct {
	windowID string
	state    State
	emitter  Emitter
	logger   *zap.Logger

	mu     sync.Mutex
	unsubs []func()
}

// New creates a sync for windowID. emitter may be nil, which disables the
// list refresh.
func New(windowID string, state State, em Emitter, logger *zap.Logger) *Sync {
	if logger == nil {
		logger = zap.NewNop()
	}
	if state == nil {
		state = NewMirror()
	}
	return &Sync{
		windowID: windowID,
		state:    state,
		emitter:  em,
		logger:   logger.Named("windowsync").With(zap.String("window_id", windowID)),
	}
}

// Install subscribes every handler. Calling it again is a no-op.
func (s *Sync) Install(r Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.unsubs) > 0 {
		return
	}

	local := map[string]func(*envelope.Envelope) error{
		types.TopicMaximized: func(*envelope.Envelope) error {
			s.state.SetStatus(types.StatusMaximized)
			return nil
		},
		types.TopicMinimized: func(*envelope.Envelope) error {
			s.state.SetStatus(types.StatusMinimized)
			return nil
		},
		types.TopicRestored: func(*envelope.Envelope) error {
			s.state.SetStatus(types.StatusNormal)
			return nil
		},
		types.TopicHidden: func(*envelope.Envelope) error {
			s.state.SetVisible(false)
			return nil
		},
		types.TopicShown: func(*envelope.Envelope) error {
			s.state.SetVisible(true)
			return nil
		},
		types.TopicMoved:   s.moved,
		types.TopicResized: s.resized,
		types.TopicState:   s.fullState,
	}
	for topic, apply := range local {
		s.unsubs = append(s.unsubs, r.On(topic, router.Func(s.confirmed(apply))))
	}

	// The host tears the window down itself; nothing changes locally.
	s.unsubs = append(s.unsubs, r.On(types.TopicClosed, router.Func(func(e *envelope.Envelope) error {
		if s.targetsLocal(e) {
			s.logger.Info("window closed by hub")
		}
		return nil
	})))

	refresh := router.Func(s.refreshList)
	s.unsubs = append(s.unsubs,
		r.On(types.TopicOpened, refresh),
		r.On(types.TopicClosed, refresh),
		r.On(types.TopicListed, router.Func(s.listed)),
	)
}

// Uninstall removes every handler installed by Install.
func (s *Sync) Uninstall() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// State returns the state the handlers write to.
func (s *Sync) State() State {
	return s.state
}

// confirmed guards apply with the window and success filters.
func (s *Sync) confirmed(apply func(*envelope.Envelope) error) router.HandlerFunc {
	return func(e *envelope.Envelope) error {
		if !s.targetsLocal(e) || e.Get(types.KeySuccess).Type != gjson.True {
			return nil
		}
		s.logger.Debug("applying window event", zap.String("topic", e.Topic))
		return apply(e)
	}
}

func (s *Sync) targetsLocal(e *envelope.Envelope) bool {
	wid := e.Get(types.KeyWindowID)
	return wid.Type == gjson.String && wid.Str == s.windowID
}

func (s *Sync) moved(e *envelope.Envelope) error {
	pos := e.Get(types.KeyPosition)
	if !pos.IsObject() {
		return fmt.Errorf("%s without position", e.Topic)
	}
	s.state.SetPosition(types.WindowPosition{
		X: int(pos.Get("x").Int()),
		Y: int(pos.Get("y").Int()),
	})
	return nil
}

func (s *Sync) resized(e *envelope.Envelope) error {
	size := e.Get(types.KeySize)
	if !size.IsObject() {
		return fmt.Errorf("%s without size", e.Topic)
	}
	s.state.SetSize(types.WindowSize{
		Width:  int(size.Get("width").Int()),
		Height: int(size.Get("height").Int()),
	})
	return nil
}

func (s *Sync) fullState(e *envelope.Envelope) error {
	var payload struct {
		State *types.WindowState `json:"state"`
	}
	if err := e.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", e.Topic, err)
	}
	if payload.State == nil {
		return fmt.Errorf("%s without state", e.Topic)
	}
	s.state.SetState(*payload.State)
	return nil
}

// refreshList asks the hub for the full list after any window opened or
// closed.
func (s *Sync) refreshList(e *envelope.Envelope) error {
	if s.emitter == nil {
		return nil
	}
	s.emitter.Emit(types.TopicListAll, emitter.Options{})
	return nil
}

func (s *Sync) listed(e *envelope.Envelope) error {
	if !e.Get(types.KeyWindows).IsArray() {
		return fmt.Errorf("%s without windows array", e.Topic)
	}
	var payload struct {
		Windows []types.Window `json:"windows"`
	}
	if err := e.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", e.Topic, err)
	}
	if payload.Windows == nil {
		payload.Windows = []types.Window{}
	}
	s.state.SetWindows(payload.Windows)
	return nil
}
