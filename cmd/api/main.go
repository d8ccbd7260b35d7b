package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/api"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/api/middleware"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/config"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/jobstore"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/logger"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/queue"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	appLogger := logger.New(&logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: cfg.Logging.ServiceName + "-api",
		LogFile:     cfg.Logging.File,
		LogFileOnly: cfg.Logging.FileOnly,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize storage
	objectStorage, err := storage.NewS3Storage(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	ctx := context.Background()
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// Initialize queue
	workQueue, err := queue.NewSQSQueue(&queue.SQSConfig{
		QueueURL:  cfg.Queue.QueueURL,
		Region:    cfg.Queue.Region,
		Endpoint:  cfg.Queue.Endpoint,
		AccessKey: cfg.Queue.AccessKey,
		SecretKey: cfg.Queue.SecretKey,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize queue")
	}

	// Initialize job store
	jobs := jobstore.New(objectStorage, appLogger, cfg.Retention.MaxJobs)
	go func() {
		for err := range jobs.PruneErrors() {
			appLogger.WithError(err).Warn("Background retention pass failed")
		}
	}()

	// Setup router
	router := api.SetupRouter(api.RouterConfig{
		Jobs:    jobs,
		Storage: objectStorage,
		Queue:   workQueue,
		Logger:  appLogger,
		Mode:    cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
