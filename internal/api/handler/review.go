package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/api/middleware"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/extract"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/jobstore"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/logger"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/queue"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/storage"
)

const maxUploadBytes = 25 << 20 // 25 MB

// ReviewHandler handles review submission endpoints.
type ReviewHandler struct {
	jobs    *jobstore.Store
	storage storage.ObjectStorage
	queue   queue.MessageQueue
}

// NewReviewHandler creates a new review handler.
// Parameters:
//   - jobs: job store instance.
//   - objectStorage: content blob storage.
//   - q: work queue for the review worker.
//
// Returns:
//   - *ReviewHandler: initialized handler.
func NewReviewHandler(jobs *jobstore.Store, objectStorage storage.ObjectStorage, q queue.MessageQueue) *ReviewHandler {
	return &ReviewHandler{
		jobs:    jobs,
		storage: objectStorage,
		queue:   q,
	}
}

// SubmitTextRequest is the body of POST /api/v1/reviews.
type SubmitTextRequest struct {
	Content  string                 `json:"content" binding:"required"`
	FileName string                 `json:"fileName"`
	Metadata map[string]interface{} `json:"metadata"`
}

// SubmitText handles POST /api/v1/reviews.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *ReviewHandler) SubmitText(c *gin.Context) {
	var req SubmitTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = "content.txt"
	}

	job := &domain.Job{
		ID:         uuid.New().String(),
		SourceType: domain.SourceTypeText,
		FileName:   fileName,
		FileSize:   int64(len(req.Content)),
		MimeType:   "text/plain",
		Metadata:   req.Metadata,
	}

	h.enqueue(c, job, []byte(req.Content), domain.MessageTypeTextReview)
}

// Upload handles POST /api/v1/reviews/upload (multipart form, field "file").
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *ReviewHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Form field 'file' is required",
		})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File exceeds the upload limit",
		})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(fileHeader.Filename)); byExt != "" {
			contentType = byExt
		}
	}
	if !extract.Supported(contentType) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":     "Unsupported content type: " + contentType,
			"supported": extract.SupportedTypes(),
		})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read upload: " + err.Error(),
		})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read upload: " + err.Error(),
		})
		return
	}
	if int64(len(data)) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File exceeds the upload limit",
		})
		return
	}

	job := &domain.Job{
		ID:         uuid.New().String(),
		SourceType: domain.SourceTypeFile,
		FileName:   filepath.Base(fileHeader.Filename),
		FileSize:   int64(len(data)),
		MimeType:   contentType,
	}

	h.enqueue(c, job, data, domain.MessageTypeFileReview)
}

// enqueue persists the content blob and job record, then hands the work
// to the queue. The job record exists before the message is visible, so
// the worker always finds it.
func (h *ReviewHandler) enqueue(c *gin.Context, job *domain.Job, content []byte, msgType domain.MessageType) {
	ctx := c.Request.Context()
	log := middleware.GetLogger(c).WithField(logger.FieldJobID, job.ID)

	job.ContentRef = storage.UploadKey(job.ID, job.FileName)

	if err := h.storage.Upload(ctx, job.ContentRef, bytes.NewReader(content), int64(len(content)), job.MimeType); err != nil {
		log.WithError(err).Error("Failed to store review content")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store content",
		})
		return
	}

	if err := h.jobs.Create(ctx, job); err != nil {
		log.WithError(err).Error("Failed to create job record")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create review job",
		})
		return
	}

	body, err := json.Marshal(domain.QueueMessage{
		JobID:       job.ID,
		MessageType: msgType,
		ContentRef:  job.ContentRef,
		ContentType: job.MimeType,
		FileName:    job.FileName,
	})
	if err == nil {
		err = h.queue.Send(ctx, string(body))
	}
	if err != nil {
		log.WithError(err).Error("Failed to enqueue review job")
		jobErr := domain.NewJobError(domain.ErrCodeServiceUnavailable, "Could not queue the review for processing")
		if _, updErr := h.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed,
			&domain.StatusPatch{Error: jobErr}); updErr != nil {
			log.WithError(updErr).Error("Failed to mark unqueued job failed")
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to queue the review",
		})
		return
	}

	log.WithField("message_type", string(msgType)).Info("Review job accepted")
	c.JSON(http.StatusAccepted, gin.H{
		"id":        job.ID,
		"status":    string(domain.JobStatusPending),
		"createdAt": job.CreatedAt.Format(time.RFC3339),
	})
}
