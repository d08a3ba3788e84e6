package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"officehub/services/broadcast-relay/config"
	"officehub/services/broadcast-relay/handlers"
	"officehub/services/broadcast-relay/hub"
	"officehub/services/broadcast-relay/middleware"
	ws "officehub/services/broadcast-relay/websocket"
	"officehub/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Setup logger
	logger := utils.NewLogger(cfg.LogLevel).With("service", "broadcast-relay")

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	subscribers := hub.New(logger)
	relay := handlers.NewRelayHandler(subscribers, ws.Options{
		BufferSize: cfg.SubscriberBuffer,
		PongWait:   cfg.PongWait,
		PingPeriod: cfg.PingInterval,
	}, cfg.MaxEventBytes, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.Logging(logger, relay.Routes()),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting Broadcast Relay", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Subscribers hold hijacked connections that Shutdown does not track.
	subscribers.CloseAll()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
