package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	port := flag.String("port", "", "Hub port (overrides WINDOWBUS_HUB_PORT)")
	host := flag.String("host", "", "Hub host (overrides WINDOWBUS_HUB_HOST)")
	dev := flag.Bool("dev", false, "Development logging")
	envFile := flag.String("env", ".env", "Optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Hub.Port = *port
	}
	if *host != "" {
		cfg.Hub.Host = *host
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	logger := srv.Logger()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
