// Package storage is the persisted key/value store shared by every window of
// a run. Session and addon live under fixed shared keys; context lives under
// one key per window.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Shared and window-scoped keys.
const (
	KeySession       = "session_id"
	KeyAddon         = "addon"
	keyContextPrefix = "context:"
)

// ContextKey returns the window-scoped key holding a window's context.
func ContextKey(windowID string) string {
	return keyContextPrefix + windowID
}

// Store defines the interface for persisted window state
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// GetOrSet stores value only if key is absent and returns whichever
	// value is stored afterwards. Two windows racing to create the session
	// both end up with the winner's value.
	GetOrSet(ctx context.Context, key, value string) (string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
