package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/storage"
)

// HealthHandler reports service liveness plus a cheap reachability probe
// of the job record store.
type HealthHandler struct {
	service string
	storage storage.ObjectStorage
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - service: name reported in the health payload.
//   - objectStorage: store probed for reachability.
//
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(service string, objectStorage storage.ObjectStorage) *HealthHandler {
	return &HealthHandler{service: service, storage: objectStorage}
}

// Health handles GET /health. The storage probe is a single head request
// against the job record prefix; only transport failures degrade the
// status, a missing object does not.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	storageOK := true
	if _, err := h.storage.Exists(c.Request.Context(), storage.JobRecordPrefix()); err != nil {
		status = "degraded"
		storageOK = false
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"service": h.service,
		"storage": storageOK,
	})
}
