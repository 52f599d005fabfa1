// Package contextstore resolves and updates the business context of a
// window. Context is always stored under a window-scoped key; the shared
// "context" key is never read, so windows working on different tasks do
// not leak context into each other.
package contextstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/identity"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/storage"
)

const storeTimeout = 2 * time.Second

// Globals exposes process-wide context defaults injected by the host.
type Globals interface {
	Global(field string) (string, bool)
}

// Store holds the current context of one window.
type Store struct {
	store  storage.Store
	logger *zap.Logger

	mu       sync.RWMutex
	params   identity.Params
	globals  Globals
	windowID string
	current  envelope.Context
}

// New creates a context store. Any argument may be nil.
func New(store storage.Store, params identity.Params, globals Globals, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		store:   store,
		params:  params,
		globals: globals,
		logger:  logger.Named("context"),
	}
}

// SetGlobals swaps the injected defaults, e.g. after the launch file changed.
// Fields of the current window's context that still hold the previous
// default follow the new one, in memory and in the store. Values that came
// from a parameter or an Update are kept.
func (s *Store) SetGlobals(g Globals) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.globals
	s.globals = g
	if s.windowID == "" {
		return
	}

	s.current, _ = s.rebase(s.current, prev, g)

	stored, ok := s.load(s.windowID)
	if !ok {
		return
	}
	stored, changed := s.rebase(stored, prev, g)
	if !changed {
		return
	}
	if stored.IsEmpty() {
		s.remove(s.windowID)
		return
	}
	s.save(s.windowID, stored)
}

// rebase moves fields of c that equal their prev default onto next.
func (s *Store) rebase(c envelope.Context, prev, next Globals) (envelope.Context, bool) {
	changed := false
	for _, f := range envelope.ContextFields {
		if s.param(f) != nil {
			continue
		}
		was, ok := global(prev, f)
		if !ok {
			continue
		}
		cur := c.Get(f)
		if cur == nil || *cur != was {
			continue
		}
		var v *string
		if now, ok := global(next, f); ok {
			v = envelope.Str(now)
		}
		c = c.With(f, v)
		changed = true
	}
	return c, changed
}

// Detect resolves each field independently: connection-time parameter,
// then the window's stored value, then the injected global, then nil.
// The result is persisted only when at least one field is set.
func (s *Store) Detect(windowID string) envelope.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, _ := s.load(windowID)

	var resolved envelope.Context
	for _, f := range envelope.ContextFields {
		resolved = resolved.With(f, s.resolveField(f, stored))
	}

	s.windowID = windowID
	s.current = resolved

	if !resolved.IsEmpty() {
		s.save(windowID, resolved)
	}
	return resolved.Clone()
}

// Update shallow-merges patch into the window's context and re-persists it.
// Keys present in patch win, including explicit nils.
func (s *Store) Update(windowID string, patch envelope.ContextPatch) envelope.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.current
	if windowID != s.windowID {
		base, _ = s.load(windowID)
		s.windowID = windowID
	}

	s.current = base.Apply(patch)
	s.save(windowID, s.current)
	return s.current.Clone()
}

// Current returns the context last detected or updated.
func (s *Store) Current() envelope.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Merge returns the current context with patch applied, without storing it.
// A nil patch yields the current context verbatim.
func (s *Store) Merge(patch envelope.ContextPatch) envelope.Context {
	return s.Current().Apply(patch)
}

func (s *Store) resolveField(field string, stored envelope.Context) *string {
	if v := s.param(field); v != nil {
		return v
	}
	if v := stored.Get(field); v != nil {
		return v
	}
	if v, ok := global(s.globals, field); ok {
		return envelope.Str(v)
	}
	// Structural detection from the location is not implemented; the
	// fallback is always nil.
	return nil
}

// param returns the non-empty string parameter for field, or nil.
func (s *Store) param(field string) *string {
	if s.params == nil {
		return nil
	}
	v, ok := s.params.Param(field)
	if !ok {
		return nil
	}
	if str, isString := v.(string); isString && str != "" {
		return envelope.Str(str)
	}
	return nil
}

func global(g Globals, field string) (string, bool) {
	if g == nil {
		return "", false
	}
	return g.Global(field)
}

func (s *Store) load(windowID string) (envelope.Context, bool) {
	var c envelope.Context
	if s.store == nil || windowID == "" {
		return c, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	raw, err := s.store.Get(ctx, storage.ContextKey(windowID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("context read failed", zap.String("window_id", windowID), zap.Error(err))
		}
		return c, false
	}
	if err := sonic.UnmarshalString(raw, &c); err != nil {
		s.logger.Warn("discarding unreadable stored context", zap.String("window_id", windowID), zap.Error(err))
		return envelope.Context{}, false
	}
	return c, true
}

func (s *Store) save(windowID string, c envelope.Context) {
	if s.store == nil || windowID == "" {
		return
	}
	raw, err := sonic.MarshalString(c)
	if err != nil {
		s.logger.Warn("context encode failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.store.Set(ctx, storage.ContextKey(windowID), raw); err != nil {
		s.logger.Debug("context write failed", zap.String("window_id", windowID), zap.Error(err))
	}
}

func (s *Store) remove(windowID string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.store.Delete(ctx, storage.ContextKey(windowID)); err != nil {
		s.logger.Debug("context delete failed", zap.String("window_id", windowID), zap.Error(err))
	}
}
