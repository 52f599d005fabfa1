// Package window is the reference hub's window registry.
//
// No native windows exist behind it: the registry records what the
// wm.window.* commands did so the hub can answer list and state queries.
// Windows enter through wm.window.open or, for windows the host opened
// itself, by connecting; the latter leave again with their last socket.
package window
