package windowsync

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

// State is the UI state the sync handlers write to. The host owns it; the
// bus only mirrors hub confirmations into it.
type State interface {
	SetStatus(status types.Status)
	SetVisible(visible bool)
	SetPosition(pos types.WindowPosition)
	SetSize(size types.WindowSize)
	SetState(state types.WindowState)
	SetWindows(windows []types.Window)
}

// Mirror is the default in-memory State.
type Mirror struct {
	mu      sync.RWMutex
	state   types.WindowState
	windows []types.Window
}

// NewMirror creates a mirror for a visible, normal window.
func NewMirror() *Mirror {
	return &Mirror{
		state: types.WindowState{Status: types.StatusNormal, Visible: true},
	}
}

// SetStatus implements State.
func (m *Mirror) SetStatus(status types.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Status = status
}

// SetVisible implements State.
func (m *Mirror) SetVisible(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Visible = visible
}

// SetPosition implements State.
func (m *Mirror) SetPosition(pos types.WindowPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Position = &pos
}

// SetSize implements State.
func (m *Mirror) SetSize(size types.WindowSize) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Size = &size
}

// SetState implements State.
func (m *Mirror) SetState(state types.WindowState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state.Clone()
}

// SetWindows implements State. The list is replaced, never merged.
func (m *Mirror) SetWindows(windows []types.Window) {
	cp := make([]types.Window, len(windows))
	for i, w := range windows {
		cp[i] = w.Clone()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = cp
}

// State returns a copy of the local window state.
func (m *Mirror) State() types.WindowState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Windows returns a copy of the last window list.
func (m *Mirror) Windows() []types.Window {
	m.mu.RLock()
	defer m.mu.RUnlock()

	windows := make([]types.Window, len(m.windows))
	for i, w := range m.windows {
		windows[i] = w.Clone()
	}
	return windows
}
