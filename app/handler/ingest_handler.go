package handler

import (
	"net/http"
	"time"

	"floortrack/internal/model"
	"floortrack/internal/service"
	"floortrack/pkg/logger"

	"github.com/gin-gonic/gin"
)

// IngestHandler handles detection and identity ingest
type IngestHandler struct {
	trackingService *service.TrackingService
}

// NewIngestHandler creates ingest handler
func NewIngestHandler(trackingService *service.TrackingService) *IngestHandler {
	return &IngestHandler{trackingService: trackingService}
}

// Detections ingests a batch of detection records
// @Summary Ingest detection records
// @Description Accepts a batch of per-frame detection records from the vision pipeline
// @Tags ingest
// @Accept json
// @Produce json
// @Success 202 {object} map[string]int
// @Router /v1/ingest/detections [post]
func (h *IngestHandler) Detections(c *gin.Context) {
	var req struct {
		Records []model.DetectionRecord `json:"records" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for i := range req.Records {
		rec := &req.Records[i]
		if rec.CameraID == "" || rec.TrackID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "camera_id and track_id required on every record"})
			return
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now()
		}
	}

	accepted := h.trackingService.IngestDetections(c.Request.Context(), req.Records)
	if accepted < len(req.Records) {
		logger.WarnCtx(c.Request.Context(), "ingest partially accepted: %d of %d", accepted, len(req.Records))
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

// Identity ingests late worker identifications
// @Summary Ingest identity resolutions
// @Description Binds recognized worker IDs to existing tracks, backfilling open sessions
// @Tags ingest
// @Accept json
// @Produce json
// @Success 202 {object} map[string]int
// @Router /v1/ingest/identity [post]
func (h *IngestHandler) Identity(c *gin.Context) {
	var req struct {
		Records []model.IdentityRecord `json:"records" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, rec := range req.Records {
		if rec.TrackID == "" || rec.WorkerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "track_id and worker_id required on every record"})
			return
		}
	}

	h.trackingService.IngestIdentity(c.Request.Context(), req.Records)
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Records)})
}
