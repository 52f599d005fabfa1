// Package bus assembles the messaging core of one window.
//
// New builds every component in dependency order without touching the
// network. Start installs the window lifecycle subscriptions and only then
// opens the socket, so no hub confirmation can arrive before its handler
// exists. A Bus is built once per window and passed by reference.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/contextstore"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/emitter"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/identity"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/router"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/storage"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/transport"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/windowsync"
)

var (
	ErrClosed         = errors.New("bus closed")
	ErrNotConnected   = errors.New("bus not connected")
	ErrTooManyPending = errors.New("too many pending requests")
)

// closeWait bounds how long Close waits for the socket to shut down.
const closeWait = 2 * time.Second

// Deps are the collaborators a host may supply. Every field is optional.
type Deps struct {
	// Store is shared by every window of a run. When nil the bus opens one
	// from config and closes it on Close.
	Store storage.Store

	// Params and Location override the launch file.
	Params   identity.Params
	Location string

	Launch *config.Launch
	State  windowsync.State

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Bus is the connection manager of one window.
type Bus struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	store     storage.Store
	ownsStore bool

	identity  identity.Identity
	user      *envelope.User
	contexts  *contextstore.Store
	router    *router.Router
	transport *transport.Manager
	emitter   *emitter.Emitter
	sync      *windowsync.Sync
	mirror    *windowsync.Mirror
	commands  windowsync.Commands

	launchPath string
	watcher    *config.LaunchWatcher
	cancel     context.CancelFunc

	pending     atomic.Int64
	dispatching atomic.Bool

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// New builds the bus. Nothing is connected until Start.
func New(cfg *config.Config, deps Deps) (*Bus, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	launch := deps.Launch
	if launch == nil && cfg.LaunchFile != "" {
		l, err := config.LoadLaunch(cfg.LaunchFile)
		if err != nil {
			return nil, fmt.Errorf("load launch file: %w", err)
		}
		launch = l
	}

	b := &Bus{
		cfg:        cfg,
		logger:     logger.Named("bus"),
		metrics:    metrics,
		store:      deps.Store,
		launchPath: cfg.LaunchFile,
		done:       make(chan struct{}),
	}

	if b.store == nil {
		s, err := storage.New(cfg.Store, logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		b.store, b.ownsStore = s, true
	}

	var params identity.Params = deps.Params
	if params == nil && launch != nil {
		params = launch
	}
	location := deps.Location
	if location == "" && launch != nil {
		location = launch.Location
	}
	if launch != nil && launch.User != nil {
		b.user = &envelope.User{ID: launch.User.ID, Name: launch.User.Name, Email: launch.User.Email}
	}

	resolver := identity.NewResolver(b.store, params, location, logger, metrics)
	b.identity = resolver.Resolve()

	var globals contextstore.Globals
	if launch != nil {
		globals = launch
	}
	b.contexts = contextstore.New(b.store, params, globals, logger)
	b.contexts.Detect(b.identity.WindowID)

	b.router = router.New(logger, metrics)
	b.transport = transport.NewManager(cfg.Transport, transport.Callbacks{
		OnOpen:    b.onOpen,
		OnClose:   b.onClose,
		OnMessage: b.dispatch,
	}, logger, metrics)
	b.emitter = emitter.New(b.transport, b.contexts, b.identity, b.user, logger, metrics)

	state := deps.State
	if state == nil {
		b.mirror = windowsync.NewMirror()
		state = b.mirror
	} else if m, ok := state.(*windowsync.Mirror); ok {
		b.mirror = m
	}
	b.sync = windowsync.New(b.identity.WindowID, state, b.emitter, logger)
	b.commands = windowsync.NewCommands(b.emitter)

	b.logger.Info("bus ready",
		zap.String("session_id", b.identity.Session),
		zap.String("addon", b.identity.Addon),
		zap.String("window_id", b.identity.WindowID))
	return b, nil
}

// Start installs the lifecycle subscriptions, then connects. It does not
// wait for the socket; use WaitConnected for that.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.started {
		b.transport.Connect(b.identity.Session, b.identity.WindowID)
		return nil
	}

	b.sync.Install(b.router)

	if b.cfg.WatchLaunch && b.launchPath != "" {
		if err := b.watchLaunch(ctx); err != nil {
			b.logger.Warn("launch file watch disabled", zap.Error(err))
		}
	}

	b.transport.Connect(b.identity.Session, b.identity.WindowID)
	b.started = true
	return nil
}

// WaitConnected blocks until the socket is open.
func (b *Bus) WaitConnected(ctx context.Context) error {
	h := b.transport.Handle()
	if h == nil {
		return ErrNotConnected
	}
	return h.WaitOpen(ctx)
}

// On subscribes h to topic. See router.Router.On.
func (b *Bus) On(topic string, h router.Handler) (unsubscribe func()) {
	return b.router.On(topic, h)
}

// Off unsubscribes h from topic.
func (b *Bus) Off(topic string, h router.Handler) {
	b.router.Off(topic, h)
}

// Emit sends topic and returns the message id, or "" if it was dropped.
func (b *Bus) Emit(topic string, opts emitter.Options) string {
	return b.emitter.Emit(topic, opts)
}

// UpdateContext merges patch into this window's context and persists it.
func (b *Bus) UpdateContext(patch envelope.ContextPatch) envelope.Context {
	return b.contexts.Update(b.identity.WindowID, patch)
}

// Context returns the current context.
func (b *Bus) Context() envelope.Context {
	return b.contexts.Current()
}

// Identity returns the resolved identity.
func (b *Bus) Identity() identity.Identity {
	return b.identity
}

// Windows returns the last window list from the hub. It is nil when the
// host supplied its own State.
func (b *Bus) Windows() []types.Window {
	if b.mirror == nil {
		return nil
	}
	return b.mirror.Windows()
}

// WindowState returns the mirrored state of this window.
func (b *Bus) WindowState() types.WindowState {
	if b.mirror == nil {
		return types.WindowState{}
	}
	return b.mirror.State()
}

// Commands returns the wm.window.* command helper.
func (b *Bus) Commands() windowsync.Commands {
	return b.commands
}

// Connected reports whether the socket is open.
func (b *Bus) Connected() bool {
	return b.transport.Connected()
}

// Metrics returns the bus metrics.
func (b *Bus) Metrics() *monitoring.Metrics {
	return b.metrics
}

// Disconnected is closed when the current socket ends. It is already
// closed when no socket was ever started.
func (b *Bus) Disconnected() <-chan struct{} {
	if h := b.transport.Handle(); h != nil {
		return h.Done()
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Done is closed when Close has finished.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// Close disconnects and releases everything the bus owns. It is safe to
// call from a handler; in that case it does not wait for the socket.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	defer close(b.done)

	if b.cancel != nil {
		b.cancel()
	}
	if b.watcher != nil {
		b.watcher.Stop()
	}
	b.sync.Uninstall()

	if h := b.transport.Handle(); h != nil {
		h.Close()
		if !b.dispatching.Load() {
			select {
			case <-h.Done():
			case <-time.After(closeWait):
				b.logger.Warn("timed out waiting for socket to close")
			}
		}
	}

	if b.ownsStore {
		if err := b.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	b.logger.Info("bus closed")
	return nil
}

func (b *Bus) dispatch(e *envelope.Envelope) {
	b.dispatching.Store(true)
	defer b.dispatching.Store(false)
	b.router.Dispatch(e)
}

func (b *Bus) onOpen() {
	b.logger.Info("connected to hub", zap.String("url", b.transport.Handle().URL()))
}

func (b *Bus) onClose(err error) {
	if err != nil {
		b.logger.Warn("disconnected from hub", zap.Error(err))
		return
	}
	b.logger.Info("disconnected from hub")
}

// watchLaunch refreshes injected globals when the launch file changes.
func (b *Bus) watchLaunch(ctx context.Context) error {
	w, err := config.NewLaunchWatcher(b.launchPath, func(l *config.Launch) {
		b.contexts.SetGlobals(l)
		c := b.contexts.Detect(b.identity.WindowID)
		b.logger.Info("launch file reloaded", zap.Bool("context_empty", c.IsEmpty()))
	}, b.logger)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := w.Start(wctx); err != nil {
		cancel()
		w.Stop()
		return err
	}
	b.watcher, b.cancel = w, cancel
	return nil
}
