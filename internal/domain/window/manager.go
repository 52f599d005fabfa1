package window

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

// DefaultAddon is used when wm.window.open names no addon.
const DefaultAddon = "addon-skeleton"

// Manager tracks the windows the hub knows about
type Manager struct {
	mu        sync.RWMutex
	windows   map[string]*types.Window // Protected by mu
	attached  map[string]bool          // Windows known only from a live socket
	focusedID *string                  // Protected by mu
	metrics   *monitoring.Metrics
	now       func() time.Time
}

// NewManager creates an empty window manager
func NewManager() *Manager {
	return &Manager{
		windows:  make(map[string]*types.Window),
		attached: make(map[string]bool),
		now:      time.Now,
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Open creates a new window for session and focuses it
func (m *Manager) Open(session, addon string) types.Window {
	if addon == "" {
		addon = DefaultAddon
	}
	w := &types.Window{
		WindowID:  id.NewWindowID(),
		Addon:     addon,
		SessionID: session,
		Title:     addon,
		State:     types.WindowState{Status: types.StatusNormal, Visible: true},
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.windows[w.WindowID] = w
	m.focusedID = &w.WindowID
	count := len(m.windows)
	m.mu.Unlock()

	m.metrics.SetWindowsActive(count)
	return w.Clone()
}

// Attach registers a window that connected without being opened through
// the hub. It returns false if the window was already known.
func (m *Manager) Attach(session, windowID string) bool {
	m.mu.Lock()
	if _, ok := m.windows[windowID]; ok {
		m.mu.Unlock()
		return false
	}
	m.windows[windowID] = &types.Window{
		WindowID:  windowID,
		SessionID: session,
		State:     types.WindowState{Status: types.StatusNormal, Visible: true},
		CreatedAt: m.now(),
	}
	m.attached[windowID] = true
	count := len(m.windows)
	m.mu.Unlock()

	m.metrics.SetWindowsActive(count)
	return true
}

// Detach forgets a window registered by Attach once its socket is gone.
// Windows opened through the hub stay until closed.
func (m *Manager) Detach(windowID string) {
	m.mu.Lock()
	if !m.attached[windowID] {
		m.mu.Unlock()
		return
	}
	m.closeWindow(windowID)
	count := len(m.windows)
	m.mu.Unlock()

	m.metrics.SetWindowsActive(count)
}

// Get retrieves a window by ID
func (m *Manager) Get(windowID string) (types.Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.windows[windowID]
	if !ok {
		return types.Window{}, false
	}
	// Return a copy to prevent external modifications
	return w.Clone(), true
}

// List returns every window, oldest first
func (m *Manager) List() []types.Window {
	return m.list(func(*types.Window) bool { return true })
}

// ListBySession returns the windows of one session, oldest first
func (m *Manager) ListBySession(session string) []types.Window {
	return m.list(func(w *types.Window) bool { return w.SessionID == session })
}

func (m *Manager) list(keep func(*types.Window) bool) []types.Window {
	m.mu.RLock()
	windows := make([]types.Window, 0, len(m.windows))
	for _, w := range m.windows {
		if keep(w) {
			windows = append(windows, w.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(windows, func(i, j int) bool {
		if !windows[i].CreatedAt.Equal(windows[j].CreatedAt) {
			return windows[i].CreatedAt.Before(windows[j].CreatedAt)
		}
		return windows[i].WindowID < windows[j].WindowID
	})
	return windows
}

// Focus brings a window to the foreground
func (m *Manager) Focus(windowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.windows[windowID]; !ok {
		return false
	}
	m.focusedID = &windowID
	return true
}

// Update applies fn to a window under the lock and returns the result
func (m *Manager) Update(windowID string, fn func(*types.WindowState)) (types.Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[windowID]
	if !ok {
		return types.Window{}, false
	}
	fn(&w.State)
	return w.Clone(), true
}

// Close removes a window
func (m *Manager) Close(windowID string) bool {
	m.mu.Lock()
	if _, ok := m.windows[windowID]; !ok {
		m.mu.Unlock()
		return false
	}
	m.closeWindow(windowID)
	count := len(m.windows)
	m.mu.Unlock()

	m.metrics.SetWindowsActive(count)
	return true
}

// closeWindow removes a window and moves focus (must hold lock)
func (m *Manager) closeWindow(windowID string) {
	delete(m.windows, windowID)
	delete(m.attached, windowID)

	if m.focusedID != nil && *m.focusedID == windowID {
		m.focusedID = nil
		// Auto-focus another visible window
		for _, w := range m.windows {
			if w.State.Visible && w.State.Status != types.StatusMinimized {
				wid := w.WindowID
				m.focusedID = &wid
				break
			}
		}
	}
}

// Stats returns manager statistics
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make(map[string]struct{})
	var visible, minimized int
	for _, w := range m.windows {
		sessions[w.SessionID] = struct{}{}
		if w.State.Visible {
			visible++
		}
		if w.State.Status == types.StatusMinimized {
			minimized++
		}
	}

	// Copy pointer to avoid race
	var focusedID *string
	if m.focusedID != nil {
		wid := *m.focusedID
		focusedID = &wid
	}

	return types.Stats{
		TotalWindows:     len(m.windows),
		VisibleWindows:   visible,
		MinimizedWindows: minimized,
		Sessions:         len(sessions),
		FocusedWindowID:  focusedID,
	}
}
