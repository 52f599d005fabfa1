package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDotenv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestDefault(t *testing.T) {
	cfg := Default()

	// Hub config
	assert.Equal(t, "8000", cfg.Hub.Port)
	assert.Equal(t, "localhost", cfg.Hub.Host)
	assert.Equal(t, "localhost:8000", cfg.Hub.Addr())

	// Transport config
	assert.Equal(t, "localhost:8000", cfg.Transport.Host)
	assert.Equal(t, "/ws", cfg.Transport.Path)
	assert.Equal(t, 30*time.Second, cfg.Transport.HeartbeatInterval)
	assert.Equal(t, int64(1<<20), cfg.Transport.ReadLimit)

	// Request config
	assert.Equal(t, 5*time.Second, cfg.Request.Timeout)
	assert.Equal(t, 100, cfg.Request.MaxPending)

	// Store config
	assert.Equal(t, "memory", cfg.Store.Driver)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"WINDOWBUS_HUB_PORT":                      "9000",
		"WINDOWBUS_HUB_HOST":                      "127.0.0.1",
		"WINDOWBUS_TRANSPORT_HOST":                "hub.local:9000",
		"WINDOWBUS_TRANSPORT_HEARTBEAT_INTERVAL":  "5s",
		"WINDOWBUS_TRANSPORT_BREAKER_FAILURES":    "2",
		"WINDOWBUS_STORE_DRIVER":                  "redis",
		"WINDOWBUS_STORE_REDIS_ADDR":              "cache:6379",
		"WINDOWBUS_STORE_REDIS_DB":                "3",
		"WINDOWBUS_REQUEST_TIMEOUT":               "250ms",
		"WINDOWBUS_REQUEST_MAX_PENDING":           "7",
		"WINDOWBUS_LOGGING_LEVEL":                 "debug",
		"WINDOWBUS_LOGGING_DEVELOPMENT":           "true",
		"WINDOWBUS_RATELIMIT_REQUESTS_PER_SECOND": "500",
		"WINDOWBUS_RATELIMIT_BURST":               "1000",
		"WINDOWBUS_RATELIMIT_ENABLED":             "false",
		"WINDOWBUS_LAUNCH_FILE":                   "/tmp/launch.toml",
		"WINDOWBUS_WATCH_LAUNCH":                  "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Hub.Port)
	assert.Equal(t, "127.0.0.1", cfg.Hub.Host)

	assert.Equal(t, "hub.local:9000", cfg.Transport.Host)
	assert.Equal(t, 5*time.Second, cfg.Transport.HeartbeatInterval)
	assert.Equal(t, uint32(2), cfg.Transport.BreakerFailures)

	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 3, cfg.Store.RedisDB)

	assert.Equal(t, 250*time.Millisecond, cfg.Request.Timeout)
	assert.Equal(t, 7, cfg.Request.MaxPending)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "/tmp/launch.toml", cfg.LaunchFile)
	assert.True(t, cfg.WatchLaunch)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("WINDOWBUS_REQUEST_TIMEOUT", "soon")

	_, err := Load(noDotenv(t))
	assert.Error(t, err)

	// LoadOrDefault swallows the error
	cfg := LoadOrDefault()
	assert.Equal(t, 5*time.Second, cfg.Request.Timeout)
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"WINDOWBUS_HUB_PORT=7100\nWINDOWBUS_STORE_DRIVER=sqlite\n",
	), 0o600))

	// Real environment wins over dotenv
	t.Setenv("WINDOWBUS_STORE_DRIVER", "redis")
	t.Cleanup(func() { os.Unsetenv("WINDOWBUS_HUB_PORT") })

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Hub.Port)
	assert.Equal(t, "redis", cfg.Store.Driver)
}

func TestLoadMissingDotenvIsIgnored(t *testing.T) {
	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Hub.Port)
}

func TestLoggerConfig(t *testing.T) {
	cfg := LogConfig{Level: "warn", File: "/tmp/windowbus.log", MaxSizeMB: 10, MaxBackups: 2}
	lc := cfg.LoggerConfig()
	assert.Equal(t, "warn", lc.Level)
	assert.False(t, lc.Development)
	assert.Equal(t, "/tmp/windowbus.log", lc.File.Path)
	assert.Equal(t, 10, lc.File.MaxSizeMB)

	dev := LogConfig{Development: true}.LoggerConfig()
	assert.Equal(t, "debug", dev.Level)
	assert.True(t, dev.Development)
}
