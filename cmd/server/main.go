package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkarev/document-analysis-service/internal/assembler"
	"github.com/mkarev/document-analysis-service/internal/config"
	"github.com/mkarev/document-analysis-service/internal/db"
	"github.com/mkarev/document-analysis-service/internal/describer"
	"github.com/mkarev/document-analysis-service/internal/notifier"
	"github.com/mkarev/document-analysis-service/internal/queue"
	"github.com/mkarev/document-analysis-service/internal/repository"
	"github.com/mkarev/document-analysis-service/internal/router"
	"github.com/mkarev/document-analysis-service/internal/services"
	"github.com/mkarev/document-analysis-service/internal/storage"
	"github.com/mkarev/document-analysis-service/internal/utils"
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

	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize S3 storage", "error", err)
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

	imageDescriber := describer.NewVisionDescriber(
		cfg.OpenRouterBaseURL,
		cfg.OpenRouterAPIKey,
		cfg.OpenRouterVisionModel,
		cfg.DescribeTimeout,
		logger,
	)

	docRepo := repository.NewRepository(database)
	contentAssembler := assembler.New(imageDescriber, logger)
	docService := services.NewService(docRepo, s3Storage, contentAssembler, jobQueue, logger)
	statusNotifier := notifier.New(docRepo, cfg.PollInterval, logger)

	handler := router.NewRouter(docService, statusNotifier, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
