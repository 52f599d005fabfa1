// Package identity resolves the session, addon namespace and window identity
// of a window.
//
// Session and namespace are shared by all windows of a run and live in the
// persisted store. The window identity must differ per window, so it is only
// ever taken from the host's connection-time parameters or generated, and is
// never written to a shared key. None of the resolvers return errors: store
// failures degrade to the generation path.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/storage"
)

// Connection-time parameter names.
const (
	ParamSession = "session_id"
	ParamWindow  = "window_id"
)

const storeTimeout = 2 * time.Second

// Params exposes the connection-time parameters a host passed to the window.
type Params interface {
	Param(key string) (any, bool)
}

// ParamMap is a Params backed by a plain map.
type ParamMap map[string]any

// Param returns the value for key
func (m ParamMap) Param(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// Identity is the resolved identity triple of a window.
type Identity struct {
	Session  string
	Addon    string
	WindowID string
}

// Resolver derives a window's identity.
type Resolver struct {
	store    storage.Store
	params   Params
	location string
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu       sync.Mutex
	session  string
	addon    string
	addonSet bool
	windowID string
}

// NewResolver creates a resolver. params and store may be nil.
func NewResolver(store storage.Store, params Params, location string, logger *zap.Logger, metrics *monitoring.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params == nil {
		params = ParamMap(nil)
	}
	return &Resolver{
		store:    store,
		params:   params,
		location: location,
		logger:   logger.Named("identity"),
		metrics:  metrics,
	}
}

// Resolve returns all three identity parts.
func (r *Resolver) Resolve() Identity {
	return Identity{
		Session:  r.ResolveSession(),
		Addon:    r.ResolveNamespace(),
		WindowID: r.ResolveWindowIdentity(),
	}
}

// ResolveSession returns the run-wide session: the stored value, else the
// session_id parameter, else a new one. The result is persisted before it
// is returned, and the first writer wins if windows race.
func (r *Resolver) ResolveSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.load(storage.KeySession); ok {
		r.session = v
		return v
	}

	candidate := r.session
	if candidate == "" {
		if p, ok := r.stringParam(ParamSession); ok {
			candidate = p
		} else {
			candidate = id.NewSessionID()
		}
	}

	r.session = r.persist(storage.KeySession, candidate)
	return r.session
}

// ResolveNamespace returns the active addon: the stored value, else the
// first non-empty path segment of the window location, else "".
func (r *Resolver) ResolveNamespace() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.load(storage.KeyAddon); ok {
		r.addon, r.addonSet = v, true
		return v
	}

	candidate := r.addon
	if !r.addonSet {
		candidate = FirstPathSegment(r.location)
	}

	r.addon, r.addonSet = r.persist(storage.KeyAddon, candidate), true
	return r.addon
}

// ResolveWindowIdentity returns the window_id parameter when it is a
// non-empty string, else a generated fallback-win_ identifier. The value is
// fixed for the lifetime of the resolver.
func (r *Resolver) ResolveWindowIdentity() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.windowID != "" {
		return r.windowID
	}

	if p, ok := r.stringParam(ParamWindow); ok {
		r.windowID = p
		return p
	}

	r.windowID = id.NewFallbackWindowID()
	r.logger.Info("no window_id from host, using fallback", zap.String("window_id", r.windowID))
	return r.windowID
}

// stringParam returns a parameter only when it is a non-empty string.
// Structured values are an identity anomaly and are discarded.
func (r *Resolver) stringParam(key string) (string, bool) {
	v, ok := r.params.Param(key)
	if !ok || v == nil {
		return "", false
	}
	s, isString := v.(string)
	if !isString {
		r.logger.Warn("discarding non-string identity parameter",
			zap.String("param", key),
			zap.String("type", fmt.Sprintf("%T", v)))
		r.metrics.RecordClientError(monitoring.KindIdentity)
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func (r *Resolver) load(key string) (string, bool) {
	if r.store == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	v, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Debug("store read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return v, true
}

// persist stores candidate unless another window got there first, and
// returns the value that should be used.
func (r *Resolver) persist(key, candidate string) string {
	if r.store == nil {
		return candidate
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	stored, err := r.store.GetOrSet(ctx, key, candidate)
	if err != nil {
		r.logger.Debug("store write failed", zap.String("key", key), zap.Error(err))
		return candidate
	}
	return stored
}

// FirstPathSegment returns the first non-empty path segment of a location,
// which may be a full URL or a bare path.
func FirstPathSegment(location string) string {
	path, _, _ := strings.Cut(location, "?")
	path, _, _ = strings.Cut(path, "#")
	if u, err := url.Parse(location); err == nil {
		switch {
		case u.Opaque != "":
			// host:port/path without a scheme parses as scheme "host".
			_, path, _ = strings.Cut(u.Opaque, "/")
		case u.Scheme != "":
			path = u.Path
		}
	}
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			return seg
		}
	}
	return ""
}
