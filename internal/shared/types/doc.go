// Package types provides the window data structures and wm.window.* topic
// names shared by the client bus and the reference hub.
//
// Window State:
//   - Status: normal, maximized, minimized
//   - WindowPosition, WindowSize: Window geometry
//   - WindowState: Geometry plus visibility
//
// Registry:
//   - Window: One entry of a wm.window.listed payload
//   - Stats: Registry statistics
//
// Example Usage:
//
//	w := types.Window{
//	    WindowID:  "win_01HZ...",
//	    Addon:     "notes",
//	    SessionID: "sess_01HZ...",
//	    State:     types.WindowState{Status: types.StatusNormal, Visible: true},
//	}
package types
