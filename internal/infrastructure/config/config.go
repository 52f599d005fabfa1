package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/logging"
)

// Prefix is the environment variable prefix for every setting.
const Prefix = "WINDOWBUS"

// Config holds all windowbus configuration.
type Config struct {
	Hub       HubConfig
	Transport TransportConfig
	Store     StoreConfig
	Request   RequestConfig
	Logging   LogConfig
	RateLimit RateLimitConfig

	// LaunchFile is the host-provided file carrying connection-time params,
	// injected context globals and the user record.
	LaunchFile  string `split_words:"true"`
	WatchLaunch bool   `split_words:"true" default:"false"`
}

// HubConfig holds the reference hub's HTTP server configuration.
type HubConfig struct {
	Host string `default:"localhost"`
	Port string `default:"8000"`
}

// Addr returns host:port.
func (h HubConfig) Addr() string {
	return h.Host + ":" + h.Port
}

// TransportConfig holds client socket configuration.
type TransportConfig struct {
	Host              string        `default:"localhost:8000"`
	Path              string        `default:"/ws"`
	HandshakeTimeout  time.Duration `split_words:"true" default:"10s"`
	WriteTimeout      time.Duration `split_words:"true" default:"10s"`
	ReadLimit         int64         `split_words:"true" default:"1048576"`
	HeartbeatInterval time.Duration `split_words:"true" default:"30s"`
	BreakerFailures   uint32        `split_words:"true" default:"5"`
	BreakerTimeout    time.Duration `split_words:"true" default:"30s"`
}

// StoreConfig selects and configures the persisted store backend.
type StoreConfig struct {
	Driver        string `default:"memory"` // memory, sqlite, redis
	Path          string `default:"windowbus.db"`
	RedisAddr     string `split_words:"true" default:"localhost:6379"`
	RedisPassword string `split_words:"true"`
	RedisDB       int    `split_words:"true" default:"0"`
	Prefix        string `default:"windowbus:"`
}

// RequestConfig bounds request/reply correlation.
type RequestConfig struct {
	Timeout    time.Duration `default:"5s"`
	MaxPending int           `split_words:"true" default:"100"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `default:"info"`
	Development bool   `default:"false"`
	File        string
	MaxSizeMB   int `split_words:"true" default:"100"`
	MaxBackups  int `split_words:"true" default:"3"`
}

// LoggerConfig converts the settings for logging.New.
func (c LogConfig) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if c.Development {
		cfg = logging.DevelopmentConfig()
	}
	if c.Level != "" {
		cfg.Level = c.Level
	}
	cfg.File = logging.FileConfig{
		Path:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
	return cfg
}

// RateLimitConfig holds the hub's per-IP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `split_words:"true" default:"100"`
	Burst             int  `default:"200"`
	Enabled           bool `default:"true"`
}

// Load reads optional dotenv files, then the environment.
// Variables already present in the environment win over dotenv values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Hub: HubConfig{
			Host: "localhost",
			Port: "8000",
		},
		Transport: TransportConfig{
			Host:              "localhost:8000",
			Path:              "/ws",
			HandshakeTimeout:  10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadLimit:         1 << 20,
			HeartbeatInterval: 30 * time.Second,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
		},
		Store: StoreConfig{
			Driver:    "memory",
			Path:      "windowbus.db",
			RedisAddr: "localhost:6379",
			Prefix:    "windowbus:",
		},
		Request: RequestConfig{
			Timeout:    5 * time.Second,
			MaxPending: 100,
		},
		Logging: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
