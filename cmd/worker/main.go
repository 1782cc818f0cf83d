package main

import (
	"context"
	"os"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/internal/config"
	"github.com/anime-shed/fleet-schedule-extractor/internal/container"
	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/queue"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Failed to read .env file")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if !cfg.QueueEnabled() {
		logger.Fatal("REDIS_URL and QUEUE_NAME are required to run the worker")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := container.NewContainer(startCtx, cfg)
	cancelStart()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize container")
	}
	defer c.Close()

	server, err := queue.NewServer(queue.ServerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
	}, c.Service())
	if err != nil {
		logger.WithError(err).Fatal("Failed to create worker")
	}

	// Run blocks until SIGTERM or SIGINT
	if err := server.Run(); err != nil {
		logger.WithError(err).Error("Worker stopped")
	}
	logger.Info("Worker exited")
}
