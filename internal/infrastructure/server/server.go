package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/domain/window"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/hub"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/monitoring"
)

const readHeaderTimeout = 10 * time.Second

// Server wraps the HTTP server and the hub it serves
type Server struct {
	router  *gin.Engine
	http    *http.Server
	hub     *hub.Hub
	windows *window.Manager
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing window hub",
		zap.String("addr", cfg.Hub.Addr()),
		zap.Duration("heartbeat", cfg.Transport.HeartbeatInterval),
	)

	// Metrics first, the registry and hub report into it
	metrics := monitoring.NewMetrics()
	windows := window.NewManager().WithMetrics(metrics)
	wsHub := hub.New(windows, cfg.Transport, logger.Logger, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits, logger.Logger))
	}

	s := &Server{
		router:  router,
		hub:     wsHub,
		windows: windows,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/windows", s.listWindows)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", s.metricsJSON)
	router.GET(cfg.Transport.Path, wsHub.HandleConnection)

	s.http = &http.Server{
		Addr:              cfg.Hub.Addr(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Info("Hub initialized", zap.String("hub_id", wsHub.ID()))
	return s, nil
}

// Handler returns the HTTP handler, for embedding or httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the websocket hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Logger returns the server's logger.
func (s *Server) Logger() *logging.Logger { return s.logger }

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown disconnects every window and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down hub...")

	// Hijacked sockets are not tracked by http.Server
	s.hub.Close()
	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
	}

	_ = s.logger.Sync()
	return err
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "windowbus-hub",
		"hub_id":  s.hub.ID(),
		"ws":      s.config.Transport.Path,
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"hub_id":      s.hub.ID(),
		"connections": s.hub.ConnectionCount(),
		"sessions":    s.hub.SessionCount(),
		"windows":     s.windows.Stats(),
	})
}

func (s *Server) listWindows(c *gin.Context) {
	if session := c.Query("session_id"); session != "" {
		c.JSON(http.StatusOK, gin.H{"windows": s.windows.ListBySession(session)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": s.windows.List()})
}

func (s *Server) metricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
