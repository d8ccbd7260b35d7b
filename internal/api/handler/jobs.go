package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/api/middleware"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/jobstore"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/logger"
)

// JobHandler handles review job retrieval endpoints.
type JobHandler struct {
	jobs *jobstore.Store
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job store instance.
//
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs *jobstore.Store) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GetReview handles GET /api/v1/reviews/:id.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *JobHandler) GetReview(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Review ID is required",
		})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Review not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load review",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListReviews handles GET /api/v1/reviews.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *JobHandler) ListReviews(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	jobs, next, err := h.jobs.ListRecent(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, jobstore.ErrBadCursor) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid cursor",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list reviews",
		})
		return
	}

	resp := gin.H{
		"reviews": jobs,
		"count":   len(jobs),
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteReview handles DELETE /api/v1/reviews/:id.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *JobHandler) DeleteReview(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Review ID is required",
		})
		return
	}

	if err := h.jobs.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Review not found",
			})
			return
		}
		middleware.GetLogger(c).WithField(logger.FieldJobID, id).
			WithError(err).Error("Failed to delete review")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete review",
		})
		return
	}

	c.Status(http.StatusNoContent)
}
