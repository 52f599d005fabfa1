package bus

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/emitter"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/hub"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/identity"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/router"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/storage"
)

const wait = 3 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testHub runs a reference hub on a loopback listener.
type testHub struct {
	*hub.Hub
	host string
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tcfg := config.Default().Transport
	tcfg.HeartbeatInterval = 0
	h := hub.New(nil, tcfg, nil, nil)

	r := gin.New()
	r.GET("/ws", h.HandleConnection)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		h.Close()
		ts.Close()
	})
	return &testHub{Hub: h, host: strings.TrimPrefix(ts.URL, "http://")}
}

func (th *testHub) config() *config.Config {
	cfg := config.Default()
	cfg.Transport.Host = th.host
	cfg.Transport.HeartbeatInterval = 0
	cfg.Request.Timeout = wait
	return cfg
}

// startBus builds a bus for windowID in a shared store, connects it and
// waits until the hub has registered it.
func (th *testHub) startBus(t *testing.T, cfg *config.Config, store storage.Store, windowID string) *Bus {
	t.Helper()
	if cfg == nil {
		cfg = th.config()
	}
	b, err := New(cfg, Deps{
		Store:    store,
		Params:   identity.ParamMap{identity.ParamSession: "sess_1", identity.ParamWindow: windowID},
		Location: "/notes/edit",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	before := th.ConnectionCount()
	require.NoError(t, b.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, b.WaitConnected(ctx))
	require.Eventually(t, func() bool { return th.ConnectionCount() > before }, wait, 5*time.Millisecond)
	return b
}

// collect subscribes to topic and returns a channel of received envelopes.
func collect(b *Bus, topic string) <-chan *envelope.Envelope {
	ch := make(chan *envelope.Envelope, 16)
	b.On(topic, router.Func(func(e *envelope.Envelope) error {
		ch <- e
		return nil
	}))
	return ch
}

func receive(t *testing.T, ch <-chan *envelope.Envelope) *envelope.Envelope {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(wait):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

func TestNewDoesNotConnect(t *testing.T) {
	b, err := New(config.Default(), Deps{
		Store:    storage.NewMemoryStore(),
		Params:   identity.ParamMap{identity.ParamSession: "sess_1", identity.ParamWindow: "win_a"},
		Location: "/notes/edit",
	})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, identity.Identity{Session: "sess_1", Addon: "notes", WindowID: "win_a"}, b.Identity())
	assert.False(t, b.Connected())
	assert.ErrorIs(t, b.WaitConnected(context.Background()), ErrNotConnected)

	assert.Empty(t, b.Emit("notes.saved", emitter.Options{}))
	assert.Equal(t, int64(1), b.Metrics().Snapshot().Dropped)

	_, err = b.Request(context.Background(), "notes.query", emitter.Options{}, RequestOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, b.PendingRequests())
}

func TestEmitReachesSessionPeers(t *testing.T) {
	th := newTestHub(t)
	store := storage.NewMemoryStore()
	a := th.startBus(t, nil, store, "win_a")
	peer := th.startBus(t, nil, store, "win_b")
	got := collect(peer, "notes.saved")

	a.UpdateContext(envelope.ContextPatch{envelope.FieldProject: envelope.Str("P1")})
	msgID := a.Emit("notes.saved", emitter.Options{Payload: map[string]any{"id": 7}})
	require.NotEmpty(t, msgID)

	e := receive(t, got)
	assert.Equal(t, msgID, e.MessageID)
	assert.Equal(t, int64(7), e.Get("id").Int())
	assert.Equal(t, "win_a", e.SourceWindow())
	assert.Equal(t, "notes", e.Source.Addon)
	require.NotNil(t, e.Context)
	require.NotNil(t, e.Context.Project)
	assert.Equal(t, "P1", *e.Context.Project)
}

func TestWindowLifecycleThroughHub(t *testing.T) {
	th := newTestHub(t)
	a := th.startBus(t, nil, storage.NewMemoryStore(), "win_a")

	require.NotEmpty(t, a.Commands().Open("mail"))

	// opened triggers a list refresh, which fills the mirror
	require.Eventually(t, func() bool { return len(a.Windows()) == 2 }, wait, 10*time.Millisecond)

	require.NotEmpty(t, a.Commands().Minimize("win_a"))
	require.Eventually(t, func() bool {
		return a.WindowState().Status == types.StatusMinimized
	}, wait, 10*time.Millisecond)

	require.NotEmpty(t, a.Commands().Move("win_a", 30, 40))
	require.Eventually(t, func() bool {
		p := a.WindowState().Position
		return p != nil && *p == types.WindowPosition{X: 30, Y: 40}
	}, wait, 10*time.Millisecond)

	require.NotEmpty(t, a.Commands().Hide("win_a"))
	require.Eventually(t, func() bool { return !a.WindowState().Visible }, wait, 10*time.Millisecond)

	w, ok := th.Windows().Get("win_a")
	require.True(t, ok)
	assert.Equal(t, types.StatusMinimized, w.State.Status)
	assert.False(t, w.State.Visible)
}

func TestRequestReceivesHubReply(t *testing.T) {
	th := newTestHub(t)
	a := th.startBus(t, nil, storage.NewMemoryStore(), "win_a")

	ctx := context.Background()
	reply, err := a.Request(ctx, types.TopicListAll, emitter.Options{}, RequestOptions{ResponseTopic: types.TopicListed})
	require.NoError(t, err)
	assert.Equal(t, types.TopicListed, reply.Topic)
	assert.Len(t, reply.Get(types.KeyWindows).Array(), 1)
	assert.Equal(t, 0, a.PendingRequests())
}

func TestRequestReceivesPeerReply(t *testing.T) {
	th := newTestHub(t)
	store := storage.NewMemoryStore()
	a := th.startBus(t, nil, store, "win_a")
	responder := th.startBus(t, nil, store, "win_b")

	responder.On("notes.query", router.Func(func(e *envelope.Envelope) error {
		responder.Emit("notes.answer", emitter.Options{
			Payload: map[string]any{"echo": e.Get("q").String()},
			ReplyTo: &e.MessageID,
		})
		return nil
	}))

	// An unrelated answer must not satisfy the request
	responder.Emit("notes.answer", emitter.Options{Payload: map[string]any{"echo": "stale"}})

	reply, err := a.Request(context.Background(), "notes.query",
		emitter.Options{Payload: map[string]any{"q": "hello"}},
		RequestOptions{ResponseTopic: "notes.answer"})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Get("echo").String())
	assert.Equal(t, "win_b", reply.SourceWindow())
}

func TestRequestTimesOut(t *testing.T) {
	th := newTestHub(t)
	a := th.startBus(t, nil, storage.NewMemoryStore(), "win_a")

	start := time.Now()
	_, err := a.Request(context.Background(), "notes.query", emitter.Options{},
		RequestOptions{Timeout: 100 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), wait)
	assert.Equal(t, 0, a.PendingRequests())
}

func TestRequestLimit(t *testing.T) {
	th := newTestHub(t)
	cfg := th.config()
	cfg.Request.MaxPending = 1
	a := th.startBus(t, cfg, storage.NewMemoryStore(), "win_a")

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := a.Request(ctx, "notes.query", emitter.Options{}, RequestOptions{})
		errs <- err
	}()
	require.Eventually(t, func() bool { return a.PendingRequests() == 1 }, wait, 5*time.Millisecond)

	_, err := a.Request(context.Background(), "notes.query", emitter.Options{}, RequestOptions{})
	assert.ErrorIs(t, err, ErrTooManyPending)

	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)
	assert.Equal(t, 0, a.PendingRequests())
}

func TestCloseEndsPendingRequest(t *testing.T) {
	th := newTestHub(t)
	a := th.startBus(t, nil, storage.NewMemoryStore(), "win_a")

	errs := make(chan error, 1)
	go func() {
		_, err := a.Request(context.Background(), "notes.query", emitter.Options{}, RequestOptions{})
		errs <- err
	}()
	require.Eventually(t, func() bool { return a.PendingRequests() == 1 }, wait, 5*time.Millisecond)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, <-errs, ErrClosed)
	assert.ErrorIs(t, a.Start(context.Background()), ErrClosed)
	assert.False(t, a.Connected())
}

func TestCloseFromHandler(t *testing.T) {
	th := newTestHub(t)
	store := storage.NewMemoryStore()
	a := th.startBus(t, nil, store, "win_a")
	peer := th.startBus(t, nil, store, "win_b")

	a.On("shell.quit", router.Func(func(*envelope.Envelope) error {
		return a.Close()
	}))
	require.NotEmpty(t, peer.Emit("shell.quit", emitter.Options{}))

	select {
	case <-a.Done():
	case <-time.After(wait):
		t.Fatal("bus did not close from its handler")
	}
	require.Eventually(t, func() bool { return th.ConnectionCount() == 1 }, wait, 5*time.Millisecond)
}

func TestContextPersistsAcrossRestart(t *testing.T) {
	store := storage.NewMemoryStore()
	params := identity.ParamMap{identity.ParamSession: "sess_1", identity.ParamWindow: "win_a"}

	first, err := New(config.Default(), Deps{Store: store, Params: params})
	require.NoError(t, err)
	first.UpdateContext(envelope.ContextPatch{
		envelope.FieldProject: envelope.Str("P1"),
		envelope.FieldTask:    envelope.Str("T1"),
	})
	require.NoError(t, first.Close())

	second, err := New(config.Default(), Deps{Store: store, Params: params})
	require.NoError(t, err)
	defer second.Close()

	c := second.Context()
	require.NotNil(t, c.Project)
	assert.Equal(t, "P1", *c.Project)
	require.NotNil(t, c.Task)
	assert.Equal(t, "T1", *c.Task)
	assert.Nil(t, c.Entity)

	// Another window of the same session starts empty
	other, err := New(config.Default(), Deps{
		Store:  store,
		Params: identity.ParamMap{identity.ParamSession: "sess_1", identity.ParamWindow: "win_b"},
	})
	require.NoError(t, err)
	defer other.Close()
	assert.True(t, other.Context().IsEmpty())
	assert.Equal(t, "sess_1", other.Identity().Session)
}

const launchTOML = `
location = "/mail/inbox"

[params]
session_id = "sess_launch"
window_id = "win_launch"

[user]
id = "u1"
name = "Ada"
`

func TestLaunchFile(t *testing.T) {
	th := newTestHub(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "launch.toml")
	require.NoError(t, os.WriteFile(path, []byte(launchTOML), 0o600))

	cfg := th.config()
	cfg.LaunchFile = path
	cfg.WatchLaunch = true

	store := storage.NewMemoryStore()
	b, err := New(cfg, Deps{Store: store})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, identity.Identity{Session: "sess_launch", Addon: "mail", WindowID: "win_launch"}, b.Identity())
	assert.True(t, b.Context().IsEmpty())

	// The stored session wins over the peer's own parameter
	peer := th.startBus(t, nil, store, "win_peer")
	assert.Equal(t, "sess_launch", peer.Identity().Session)
	got := collect(peer, "mail.sent")

	require.NoError(t, b.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, b.WaitConnected(ctx))
	require.Eventually(t, func() bool { return th.ConnectionCount() == 2 }, wait, 5*time.Millisecond)

	require.NotEmpty(t, b.Emit("mail.sent", emitter.Options{}))
	e := receive(t, got)
	require.NotNil(t, e.User)
	assert.Equal(t, "u1", e.User.ID)
	assert.Equal(t, "Ada", e.User.Name)

	// Injected globals picked up on change
	updated := launchTOML + "\n[context]\nproject = \"P9\"\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.Eventually(t, func() bool {
		p := b.Context().Project
		return p != nil && *p == "P9"
	}, wait, 20*time.Millisecond)
}

func TestStartTwiceReusesConnection(t *testing.T) {
	th := newTestHub(t)
	a := th.startBus(t, nil, storage.NewMemoryStore(), "win_a")

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Connected())
	assert.Equal(t, 1, th.ConnectionCount())
}

func TestDisconnectedWhenHubCloses(t *testing.T) {
	th := newTestHub(t)
	a := th.startBus(t, nil, storage.NewMemoryStore(), "win_a")

	select {
	case <-a.Disconnected():
		t.Fatal("disconnected while the hub is up")
	default:
	}

	th.Close()
	select {
	case <-a.Disconnected():
	case <-time.After(wait):
		t.Fatal("socket did not end after the hub closed")
	}
	assert.False(t, a.Connected())
	assert.Empty(t, a.Emit("notes.saved", emitter.Options{}))
}
