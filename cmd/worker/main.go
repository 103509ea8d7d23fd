package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cadence/internal/config"
	"cadence/internal/observability"
	"cadence/internal/queue"
	"cadence/internal/storage"
	"cadence/internal/worker"
	"cadence/pkg/cache"
	"cadence/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Initialize logger
	debug := true
	if err := logger.Init(debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting cadence worker service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}

	// Connect to database
	db, err := storage.NewPostgresStorage(cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
		return
	}
	defer db.Close()

	logger.Info("Database connection established")

	// Initialize archive storage from config
	archive, err := storage.NewArchiveStorage(
		cfg.S3.Endpoint,
		cfg.S3.Region,
		cfg.S3.AccessKey,
		cfg.S3.SecretKey,
		cfg.S3.Bucket,
	)
	if err != nil {
		logger.Fatal("Failed to initialize archive storage", zap.Error(err))
		return
	}

	logger.Info("Archive storage initialized")

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

	// Connect to RabbitMQ
	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		return
	}
	defer rabbitMQ.Close()

	logger.Info("RabbitMQ connection established")

	// Create processor with cache
	processor := worker.NewProcessor(db, archive, redisCache)

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Expose Prometheus metrics
	go func() {
		logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.Addr))
		if err := observability.Serve(cfg.Metrics.Addr); err != nil {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	// Start consuming messages
	go func() {
		logger.Info("Starting to consume messages from queue")
		if err := rabbitMQ.Consume(queue.QueueNameAnalytics, processor.ProcessTask); err != nil {
			logger.Error("Failed to consume messages", zap.Error(err))
			cancel()
		}
	}()

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Worker service shutdown complete")
}
