// Package config provides 12-factor configuration management for windowbus.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional .env file is read first; variables already set in the
// environment take precedence over it. CLI flags can override both.
//
// Configuration Sections:
//   - Hub: reference hub HTTP server settings (host, port)
//   - Transport: client socket settings (hub address, timeouts, heartbeat, breaker)
//   - Store: persisted store backend (memory, sqlite, redis)
//   - Request: request/reply timeout and pending limit
//   - Logging: log level, output format and rotating file sink
//   - RateLimit: per-IP rate limiting on the hub
//
// A window additionally reads a launch file (TOML or YAML) written by the
// host. It carries connection-time params, injected context defaults and
// the user. LaunchWatcher reloads it when it changes.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Dialing hub at ws://%s%s\n", cfg.Transport.Host, cfg.Transport.Path)
//
// Environment Variables (all prefixed WINDOWBUS_):
//   - HUB_HOST, HUB_PORT
//   - TRANSPORT_HOST, TRANSPORT_HEARTBEAT_INTERVAL, TRANSPORT_READ_LIMIT
//   - STORE_DRIVER, STORE_PATH, STORE_REDIS_ADDR
//   - REQUEST_TIMEOUT, REQUEST_MAX_PENDING
//   - LOGGING_LEVEL, LOGGING_DEVELOPMENT, LOGGING_FILE
//   - RATELIMIT_REQUESTS_PER_SECOND, RATELIMIT_BURST
//   - LAUNCH_FILE, WATCH_LAUNCH
package config
