package windowsync

import (
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/emitter"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

// Commands emits wm.window.* requests. Each method returns the message id,
// or "" if the emit was dropped.
type Commands struct {
	emitter Emitter
}

// NewCommands wraps an emitter.
func NewCommands(em Emitter) Commands {
	return Commands{emitter: em}
}

// Open asks the hub for a new window of addon.
func (c Commands) Open(addon string) string {
	payload := map[string]any{}
	if addon != "" {
		payload[types.KeyAddon] = addon
	}
	return c.emit(types.TopicOpen, payload)
}

// Close closes a window.
func (c Commands) Close(windowID string) string {
	return c.window(types.TopicClose, windowID)
}

// Minimize minimizes a window.
func (c Commands) Minimize(windowID string) string {
	return c.window(types.TopicMinimize, windowID)
}

// Maximize maximizes a window.
func (c Commands) Maximize(windowID string) string {
	return c.window(types.TopicMaximize, windowID)
}

// Restore returns a window to normal status.
func (c Commands) Restore(windowID string) string {
	return c.window(types.TopicRestore, windowID)
}

// Hide hides a window.
func (c Commands) Hide(windowID string) string {
	return c.window(types.TopicHide, windowID)
}

// Show shows a hidden window.
func (c Commands) Show(windowID string) string {
	return c.window(types.TopicShow, windowID)
}

// Move moves a window to x, y.
func (c Commands) Move(windowID string, x, y int) string {
	return c.emit(types.TopicMove, map[string]any{
		types.KeyWindowID: windowID,
		types.KeyPosition: types.WindowPosition{X: x, Y: y},
	})
}

// Resize resizes a window.
func (c Commands) Resize(windowID string, width, height int) string {
	return c.emit(types.TopicResize, map[string]any{
		types.KeyWindowID: windowID,
		types.KeySize:     types.WindowSize{Width: width, Height: height},
	})
}

// GetState asks for the full state of a window.
func (c Commands) GetState(windowID string) string {
	return c.window(types.TopicGetState, windowID)
}

// ListAll asks for every window the hub knows.
func (c Commands) ListAll() string {
	return c.emit(types.TopicListAll, nil)
}

// ListBySession asks for the windows of one session; an empty session means
// the caller's own.
func (c Commands) ListBySession(session string) string {
	payload := map[string]any{}
	if session != "" {
		payload[types.KeySessionID] = session
	}
	return c.emit(types.TopicListBySession, payload)
}

func (c Commands) window(topic, windowID string) string {
	return c.emit(topic, map[string]any{types.KeyWindowID: windowID})
}

func (c Commands) emit(topic string, payload map[string]any) string {
	if c.emitter == nil {
		return ""
	}
	opts := emitter.Options{}
	if payload != nil {
		opts.Payload = payload
	}
	return c.emitter.Emit(topic, opts)
}
