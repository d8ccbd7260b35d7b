package api

import (
	"github.com/gin-gonic/gin"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/api/handler"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/api/middleware"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/jobstore"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/logger"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/queue"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/storage"
)

// RouterConfig carries the pieces the HTTP surface needs.
type RouterConfig struct {
	Jobs    *jobstore.Store
	Storage storage.ObjectStorage
	Queue   queue.MessageQueue
	Logger  *logger.Logger
	Mode    string
	CORS    middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg RouterConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler("content-reviewer-api", cfg.Storage)
	reviewHandler := handler.NewReviewHandler(cfg.Jobs, cfg.Storage, cfg.Queue)
	jobHandler := handler.NewJobHandler(cfg.Jobs)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Submission
		v1.POST("/reviews", reviewHandler.SubmitText)
		v1.POST("/reviews/upload", reviewHandler.Upload)

		// Retrieval
		v1.GET("/reviews", jobHandler.ListReviews)
		v1.GET("/reviews/:id", jobHandler.GetReview)
		v1.DELETE("/reviews/:id", jobHandler.DeleteReview)
	}

	return r
}
