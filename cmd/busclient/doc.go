// Package main is busclient, a command-line window for a window hub.
//
// Usage:
//
//	busclient listen notes.saved notes.deleted
//	busclient emit notes.saved '{"id":7}' --project P1
//	busclient emit notes.query '{"q":"x"}' --wait notes.answer
//	busclient windows open notes
//	busclient windows list --of-session sess_01H...
//	busclient windows move win_01H... 100 80
//	busclient status
//
// Every command joins the session given by --session, or a new one.
// Logs go to stderr; results go to stdout.
package main
