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

	"github.com/gin-gonic/gin"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/config"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/jobstore"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/logger"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/queue"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/reviewer"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/storage"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/worker"
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
		ServiceName: cfg.Logging.ServiceName + "-worker",
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

	// Initialize review client
	reviewClient := reviewer.NewClient(&reviewer.Config{
		BaseURL:     cfg.Reviewer.BaseURL,
		APIKey:      cfg.Reviewer.APIKey,
		Model:       cfg.Reviewer.Model,
		GuardrailID: cfg.Reviewer.GuardrailID,
		MaxTokens:   cfg.Reviewer.MaxTokens,
		Temperature: cfg.Reviewer.Temperature,
		Timeout:     cfg.Reviewer.Timeout,
	})

	// Initialize queue consumer
	consumer := worker.New(workQueue, objectStorage, jobs, reviewClient, appLogger, &worker.Config{
		MaxConcurrentRequests: cfg.Worker.MaxConcurrentRequests,
		BatchSize:             cfg.Worker.BatchSize,
		WaitSeconds:           cfg.Queue.WaitSeconds,
		VisibilityTimeout:     cfg.Queue.VisibilityTimeout,
		BackoffMin:            cfg.Worker.BackoffMin,
		BackoffMax:            cfg.Worker.BackoffMax,
		MaxConsecutiveFatal:   cfg.Worker.MaxConsecutiveFatal,
	})

	// Small operational endpoint alongside the consumer
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, consumer.Status())
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.WorkerPort),
		Handler: r,
	}
	go func() {
		appLogger.WithField("port", cfg.Server.WorkerPort).Info("Starting worker status server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start status server")
		}
	}()

	// Run the consumer until interrupted
	ctx, cancel := context.WithCancel(context.Background())
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down worker...")
		cancel()
		select {
		case err := <-consumerDone:
			if err != nil {
				appLogger.WithError(err).Error("Consumer stopped with error")
			}
		case <-time.After(35 * time.Second):
			appLogger.Warn("Consumer did not drain in time")
		}
	case err := <-consumerDone:
		cancel()
		if err != nil {
			appLogger.WithError(err).Error("Consumer stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Status server forced to shutdown")
	}

	appLogger.Info("Worker exited")
}
