package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cadence/internal/api"
	"cadence/internal/config"
	"cadence/internal/queue"
	"cadence/internal/storage"
	"cadence/pkg/cache"
	"cadence/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file first
	_ = godotenv.Load()

	// Parse command line flags
	resetDB := flag.Bool("reset-db", false, "Reset database by dropping all tables and re-running migrations")
	flag.Parse()

	// Initialize the logger first
	debug := true
	if err := logger.Init(debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting cadence API service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}

	// Reset database if flag is provided
	if *resetDB {
		logger.Info("Resetting database...")
		if err := storage.ResetMigrations(cfg.Postgres.DSN); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
			return
		}
		logger.Info("Database reset completed successfully")
		return
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	db, err := storage.NewPostgresStorage(cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
		return
	}
	defer db.Close()

	logger.Info("Database connection established")

	// Connect to RabbitMQ
	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		return
	}
	defer rabbitMQ.Close()

	logger.Info("RabbitMQ connection established")

	// Initialize Redis cache
	redisCache, err := cache.NewRedisCache(
		cfg.Redis.Addr,
		cfg.Redis.Password,
		cfg.Redis.DB,
		24*time.Hour, // Default TTL 24 hours
	)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
		return
	}
	defer redisCache.Close()

	logger.Info("Redis cache connection established")

	// Initialize HTTP server
	server := api.NewServer(db, rabbitMQ, redisCache, cfg.API.EnqueueRatePerMinute)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := server.Listen(cfg.HTTP.Addr); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
			cancel()
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Graceful shutdown
	cancel()
	if err := server.Shutdown(); err != nil {
		logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}

	logger.Info("API service shutdown complete")
}
