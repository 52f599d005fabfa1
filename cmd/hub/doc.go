// Package main runs the reference window hub.
//
// The hub terminates window sockets on /ws, answers heartbeats, services
// the wm.window.* topics against an in-memory registry and routes every
// other envelope within its session. It exists for development and tests;
// a desktop host provides the production hub.
//
// Configuration:
//   - Environment variables with the WINDOWBUS_ prefix
//   - An optional dotenv file
//   - CLI flags (override env vars)
//
// Usage:
//
//	./hub -port 8000
//	./hub -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
