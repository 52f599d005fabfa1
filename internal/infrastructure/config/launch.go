package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownFormat is returned for launch files that are neither TOML nor YAML.
var ErrUnknownFormat = errors.New("unknown launch file format")

// Launch is what the host hands a window when it opens it.
//
// Params values stay untyped. A host may send a structured value where a
// string is expected and the identity resolver has to see it to reject it.
type Launch struct {
	// Location is the window's current location; its first path segment
	// names the active addon.
	Location string         `toml:"location" yaml:"location"`
	Params   map[string]any `toml:"params" yaml:"params"`

	// Globals are process-wide context defaults (project, entity, task).
	Globals map[string]string `toml:"context" yaml:"context"`

	User *LaunchUser `toml:"user" yaml:"user"`
}

// LaunchUser is the user record injected by the host.
type LaunchUser struct {
	ID    string `toml:"id" yaml:"id"`
	Name  string `toml:"name" yaml:"name"`
	Email string `toml:"email" yaml:"email"`
}

// Param returns a connection-time parameter.
func (l *Launch) Param(key string) (any, bool) {
	if l == nil || l.Params == nil {
		return nil, false
	}
	v, ok := l.Params[key]
	return v, ok
}

// Global returns an injected context default.
func (l *Launch) Global(field string) (string, bool) {
	if l == nil || l.Globals == nil {
		return "", false
	}
	v, ok := l.Globals[field]
	return v, ok && v != ""
}

// LoadLaunch reads a launch file, choosing the decoder by extension.
func LoadLaunch(path string) (*Launch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read launch file: %w", err)
	}
	return ParseLaunch(filepath.Ext(path), data)
}

// ParseLaunch decodes launch data in the format named by ext.
func ParseLaunch(ext string, data []byte) (*Launch, error) {
	var l Launch
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "toml":
		if err := toml.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("decode toml launch file: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("decode yaml launch file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	return &l, nil
}
