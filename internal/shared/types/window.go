package types

import "time"

// Status is the display status of a window
type Status string

const (
	StatusNormal    Status = "normal"
	StatusMaximized Status = "maximized"
	StatusMinimized Status = "minimized"
)

// WindowPosition represents window position on screen
type WindowPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WindowSize represents window dimensions
type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowState is the mutable geometry and visibility of a window
type WindowState struct {
	Status   Status          `json:"status"`
	Visible  bool            `json:"visible"`
	Position *WindowPosition `json:"position,omitempty"`
	Size     *WindowSize     `json:"size,omitempty"`
}

// Clone returns a deep copy
func (s WindowState) Clone() WindowState {
	if s.Position != nil {
		p := *s.Position
		s.Position = &p
	}
	if s.Size != nil {
		sz := *s.Size
		s.Size = &sz
	}
	return s
}

// Window is one entry of the hub's window list
type Window struct {
	WindowID  string      `json:"window_id"`
	Addon     string      `json:"addon"`
	SessionID string      `json:"session_id"`
	Title     string      `json:"title,omitempty"`
	State     WindowState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}

// Clone returns a deep copy
func (w Window) Clone() Window {
	w.State = w.State.Clone()
	return w
}

// Stats contains window registry statistics
type Stats struct {
	TotalWindows     int     `json:"total_windows"`
	VisibleWindows   int     `json:"visible_windows"`
	MinimizedWindows int     `json:"minimized_windows"`
	Sessions         int     `json:"sessions"`
	FocusedWindowID  *string `json:"focused_window_id,omitempty"`
}
