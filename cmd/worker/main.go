package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkarev/document-analysis-service/internal/analyzer"
	"github.com/mkarev/document-analysis-service/internal/config"
	"github.com/mkarev/document-analysis-service/internal/db"
	"github.com/mkarev/document-analysis-service/internal/queue"
	"github.com/mkarev/document-analysis-service/internal/repository"
	"github.com/mkarev/document-analysis-service/internal/utils"
	"github.com/mkarev/document-analysis-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	database, err := db.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	if err := db.RunMigrations(cfg.DatabasePath, cfg.MigrationsDir); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	jobQueue, err := queue.NewRedisQueue(queue.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Key:      cfg.AnalysisQueue,
	})
	if err != nil {
		logger.Fatal("Failed to connect to work queue", "error", err)
	}
	defer jobQueue.Close()

	backend := analyzer.NewOpenRouterAnalyzer(
		cfg.OpenRouterBaseURL,
		cfg.OpenRouterAPIKey,
		cfg.OpenRouterModel,
		cfg.AnalyzeTimeout,
		logger,
	)

	docRepo := repository.NewRepository(database)
	w := worker.New(jobQueue, backend, docRepo, cfg.AnalyzeTimeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker exited with error", "error", err)
	}

	logger.Info("Worker exited")
}
