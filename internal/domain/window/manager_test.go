package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

// newTestManager returns a manager whose clock advances one second per window.
func newTestManager() *Manager {
	m := NewManager()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	m.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return m
}

func TestOpen(t *testing.T) {
	m := newTestManager()

	w := m.Open("sess_1", "notes")
	assert.Equal(t, "notes", w.Addon)
	assert.Equal(t, "sess_1", w.SessionID)
	prefix, raw, ok := id.Split(w.WindowID)
	require.True(t, ok)
	assert.Equal(t, id.WindowPrefix, prefix)
	assert.True(t, id.IsValid(raw))
	assert.Equal(t, types.WindowState{Status: types.StatusNormal, Visible: true}, w.State)

	def := m.Open("sess_1", "")
	assert.Equal(t, DefaultAddon, def.Addon)

	stats := m.Stats()
	require.NotNil(t, stats.FocusedWindowID)
	assert.Equal(t, def.WindowID, *stats.FocusedWindowID)
}

func TestListOrderAndSessionFilter(t *testing.T) {
	m := newTestManager()
	a := m.Open("sess_1", "a")
	b := m.Open("sess_2", "b")
	c := m.Open("sess_1", "c")

	all := m.List()
	require.Len(t, all, 3)
	assert.Equal(t, []string{a.WindowID, b.WindowID, c.WindowID},
		[]string{all[0].WindowID, all[1].WindowID, all[2].WindowID})

	mine := m.ListBySession("sess_1")
	require.Len(t, mine, 2)
	assert.Equal(t, a.WindowID, mine[0].WindowID)
	assert.Equal(t, c.WindowID, mine[1].WindowID)

	assert.Empty(t, m.ListBySession("nobody"))
}

func TestUpdate(t *testing.T) {
	m := newTestManager()
	w := m.Open("sess_1", "notes")

	updated, ok := m.Update(w.WindowID, func(s *types.WindowState) {
		s.Status = types.StatusMaximized
		s.Position = &types.WindowPosition{X: 5, Y: 6}
	})
	require.True(t, ok)
	assert.Equal(t, types.StatusMaximized, updated.State.Status)

	got, _ := m.Get(w.WindowID)
	assert.Equal(t, types.WindowPosition{X: 5, Y: 6}, *got.State.Position)

	// Returned copies are detached from the registry
	got.State.Position.X = 99
	again, _ := m.Get(w.WindowID)
	assert.Equal(t, 5, again.State.Position.X)

	_, ok = m.Update("missing", func(*types.WindowState) {})
	assert.False(t, ok)
}

func TestCloseMovesFocus(t *testing.T) {
	m := newTestManager()
	first := m.Open("sess_1", "a")
	second := m.Open("sess_1", "b")

	require.True(t, m.Close(second.WindowID))
	assert.False(t, m.Close(second.WindowID))

	_, ok := m.Get(second.WindowID)
	assert.False(t, ok)

	stats := m.Stats()
	require.NotNil(t, stats.FocusedWindowID)
	assert.Equal(t, first.WindowID, *stats.FocusedWindowID)
}

func TestAttachDetach(t *testing.T) {
	m := newTestManager()
	opened := m.Open("sess_1", "notes")

	assert.True(t, m.Attach("sess_1", "fallback-win_x"))
	assert.False(t, m.Attach("sess_1", "fallback-win_x"))
	assert.False(t, m.Attach("sess_1", opened.WindowID))
	assert.Len(t, m.List(), 2)

	m.Detach("fallback-win_x")
	m.Detach(opened.WindowID)

	windows := m.List()
	require.Len(t, windows, 1)
	assert.Equal(t, opened.WindowID, windows[0].WindowID)
}

func TestStats(t *testing.T) {
	metrics := monitoring.NewMetrics()
	m := newTestManager().WithMetrics(metrics)
	a := m.Open("sess_1", "a")
	m.Open("sess_2", "b")
	m.Update(a.WindowID, func(s *types.WindowState) {
		s.Status = types.StatusMinimized
		s.Visible = false
	})

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalWindows)
	assert.Equal(t, 1, stats.VisibleWindows)
	assert.Equal(t, 1, stats.MinimizedWindows)
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, int64(2), metrics.Snapshot().ActiveWindows)
}

func TestFocus(t *testing.T) {
	m := newTestManager()
	a := m.Open("sess_1", "a")
	m.Open("sess_1", "b")

	assert.True(t, m.Focus(a.WindowID))
	assert.False(t, m.Focus("missing"))
	assert.Equal(t, a.WindowID, *m.Stats().FocusedWindowID)
}
