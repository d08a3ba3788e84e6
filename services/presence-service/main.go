package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"officehub/pkg/broadcast"
	"officehub/services/presence-service/config"
	"officehub/services/presence-service/db"
	"officehub/services/presence-service/handlers"
	"officehub/services/presence-service/middleware"
	"officehub/services/presence-service/services"
	"officehub/services/presence-service/store"
	"officehub/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel).With("service", "presence-service")

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	// Connect to the user store
	userStore, closeStore, err := openUserStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open user store", "store", cfg.UserStore, "error", err)
	}
	defer closeStore()

	// Initialize services
	publisher := broadcast.NewPublisher(cfg.BroadcastAddr, cfg.BroadcastTimeout, logger.With("component", "publisher"))
	presenceService := services.NewPresenceService(userStore, publisher, logger,
		services.WithStaleness(cfg.Staleness),
	)

	// Initialize handlers
	presenceHandler := handlers.NewPresenceHandler(presenceService, cfg.HeartbeatInterval, logger)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", handlers.HealthCheck)

	v1 := router.Group("/api/v1")
	if cfg.JWTSecret != "" {
		v1.Use(middleware.Auth(cfg.JWTSecret))
	} else {
		logger.Warn("JWT_SECRET not set, presence API is unauthenticated")
	}
	presenceHandler.Register(v1)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting Presence Service",
			"port", cfg.Port,
			"store", cfg.UserStore,
			"staleness", cfg.Staleness.String(),
			"broadcast_addr", cfg.BroadcastAddr,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

func openUserStore(cfg *config.Config, logger *utils.Logger) (store.UserStore, func(), error) {
	if cfg.UserStore == config.StoreRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, err := store.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client, logger), func() { client.Close() }, nil
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store.NewGormStore(database), func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	}, nil
}
