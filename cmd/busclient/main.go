package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/bus"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/identity"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/logging"
)

var (
	hubHost   string
	sessionID string
	windowID  string
	location  string
	logLevel  string
	envFile   string
	timeout   time.Duration

	rootCmd = &cobra.Command{
		Use:   "busclient",
		Short: "Talk to a window hub from the command line",
		Long: `busclient connects to a window hub as an ordinary window. It can print
the envelopes of chosen topics, emit envelopes, drive the window manager
topics and query the hub's HTTP status endpoints.`,
		SilenceUsage: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&hubHost, "host", "", "Hub host:port (default from WINDOWBUS_TRANSPORT_HOST)")
	flags.StringVar(&sessionID, "session", "", "Session id to join (default: a new session)")
	flags.StringVar(&windowID, "window", "", "Window id to connect as (default: a fallback id)")
	flags.StringVar(&location, "location", "/busclient", "Window location; its first segment is the addon")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level for stderr (debug, info, warn, error)")
	flags.StringVar(&envFile, "env", ".env", "Optional dotenv file")
	flags.DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Connect and request timeout")

	rootCmd.AddCommand(listenCmd, emitCmd, windowsCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig applies the persistent flags over the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if hubHost != "" {
		cfg.Transport.Host = hubHost
	}
	cfg.Logging.Level = logLevel
	cfg.Request.Timeout = timeout
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := cfg.Logging.LoggerConfig()
	lc.OutputPaths = []string{"stderr"}
	return logging.New(lc)
}

// connect builds a bus from the flags and waits for the socket.
func connect(ctx context.Context) (*bus.Bus, *logging.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	params := identity.ParamMap{}
	if sessionID != "" {
		params[identity.ParamSession] = sessionID
	}
	if windowID != "" {
		params[identity.ParamWindow] = windowID
	}

	b, err := bus.New(cfg, bus.Deps{
		Params:   params,
		Location: location,
		Logger:   logger.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bus: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		_ = b.Close()
		return nil, nil, err
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := b.WaitConnected(wctx); err != nil {
		_ = b.Close()
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.Transport.Host, err)
	}

	id := b.Identity()
	logger.Debug("connected",
		zap.String("session_id", id.Session),
		zap.String("window_id", id.WindowID))
	return b, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
