package handler

import (
	"net/http"
	"strconv"
	"time"

	"floortrack/internal/schedule"
	"floortrack/internal/service"
	"floortrack/pkg/logger"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves snapshot, index record, alert and anomaly APIs
type DashboardHandler struct {
	snapshotService *service.SnapshotService
	trackingService *service.TrackingService
	alertService    *service.AlertService
	resolver        *schedule.Resolver
}

// NewDashboardHandler creates dashboard handler
func NewDashboardHandler(
	snapshotService *service.SnapshotService,
	trackingService *service.TrackingService,
	alertService *service.AlertService,
	resolver *schedule.Resolver,
) *DashboardHandler {
	return &DashboardHandler{
		snapshotService: snapshotService,
		trackingService: trackingService,
		alertService:    alertService,
		resolver:        resolver,
	}
}

// Snapshot serves the latest floor summary
// @Summary Get floor snapshot
// @Description Current point-in-time floor summary for (re)connecting clients
// @Tags dashboard
// @Produce json
// @Success 200 {object} model.Snapshot
// @Router /api/v1/snapshot [get]
func (h *DashboardHandler) Snapshot(c *gin.Context) {
	snapshot, err := h.snapshotService.Get(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build snapshot"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// Tracks lists live tracked objects
// @Summary List live tracks
// @Description Ephemeral per-camera state of every track currently on the floor
// @Tags dashboard
// @Produce json
// @Router /api/v1/tracks [get]
func (h *DashboardHandler) Tracks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tracks": h.trackingService.LiveTracks()})
}

// IndexRecords lists the day's index period records
// @Summary List index records
// @Description Per-period aggregates for a date, live values for unfinalized periods
// @Tags dashboard
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Router /api/v1/index-records [get]
func (h *DashboardHandler) IndexRecords(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = h.resolver.DateKey(time.Now().In(h.resolver.Location()))
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	records, err := h.snapshotService.IndexRecords(c.Request.Context(), date)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list index records, date: %s: %v", date, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list index records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "records": records})
}

// FinalizeIndex force-finalizes one index period
// @Summary Finalize index period
// @Description Seals the period's aggregate before its natural end (completion_status "forced")
// @Tags dashboard
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param index_number path int true "Index period number"
// @Router /api/v1/index-records/{index_number}/finalize [post]
func (h *DashboardHandler) FinalizeIndex(c *gin.Context) {
	date, indexNumber, ok := h.dateAndIndex(c)
	if !ok {
		return
	}

	record := h.trackingService.FinalizeIndex(c.Request.Context(), date, indexNumber, time.Now().In(h.resolver.Location()), true)
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no aggregate for the given date and index"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// ReopenIndex reverts a finalized index period
// @Summary Reopen index period
// @Description Reopens a finalized period so late data is accepted again
// @Tags dashboard
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param index_number path int true "Index period number"
// @Router /api/v1/index-records/{index_number}/reopen [post]
func (h *DashboardHandler) ReopenIndex(c *gin.Context) {
	date, indexNumber, ok := h.dateAndIndex(c)
	if !ok {
		return
	}

	if err := h.trackingService.ReopenIndex(c.Request.Context(), date, indexNumber); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to reopen index, date: %s, index: %d: %v", date, indexNumber, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "index period reopened"})
}

// Alerts lists alerts
// @Summary List alerts
// @Tags dashboard
// @Produce json
// @Param status query string false "Filter by status"
// @Param limit query int false "Max rows, default 50"
// @Router /api/v1/alerts [get]
func (h *DashboardHandler) Alerts(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	alerts, err := h.alertService.ListAlerts(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// AcknowledgeAlert marks an alert as seen
// @Summary Acknowledge alert
// @Tags dashboard
// @Param alert_id path string true "Alert ID"
// @Router /api/v1/alerts/{alert_id}/ack [post]
func (h *DashboardHandler) AcknowledgeAlert(c *gin.Context) {
	alertID := c.Param("alert_id")
	if alertID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alert_id required"})
		return
	}

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.alertService.Acknowledge(c.Request.Context(), alertID, req.AcknowledgedBy); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to acknowledge alert, alert_id: %s: %v", alertID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert acknowledged"})
}

// Anomalies lists unresolved anomalies
// @Summary List unresolved anomalies
// @Tags dashboard
// @Produce json
// @Router /api/v1/anomalies [get]
func (h *DashboardHandler) Anomalies(c *gin.Context) {
	anomalies, err := h.alertService.ListUnresolvedAnomalies(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list anomalies: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list anomalies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": anomalies})
}

// ResolveAnomaly resolves an anomaly on operator request
// @Summary Resolve anomaly
// @Tags dashboard
// @Param anomaly_id path string true "Anomaly ID"
// @Router /api/v1/anomalies/{anomaly_id}/resolve [post]
func (h *DashboardHandler) ResolveAnomaly(c *gin.Context) {
	anomalyID := c.Param("anomaly_id")
	if anomalyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "anomaly_id required"})
		return
	}

	var req struct {
		ResolvedBy string `json:"resolved_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.alertService.ResolveAnomaly(c.Request.Context(), anomalyID, req.ResolvedBy); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to resolve anomaly, anomaly_id: %s: %v", anomalyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "anomaly resolved"})
}

func (h *DashboardHandler) dateAndIndex(c *gin.Context) (string, int, bool) {
	date := c.Query("date")
	if date == "" {
		date = h.resolver.DateKey(time.Now().In(h.resolver.Location()))
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return "", 0, false
	}

	indexNumber, err := strconv.Atoi(c.Param("index_number"))
	if err != nil || indexNumber < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index_number must be a non-negative integer"})
		return "", 0, false
	}
	return date, indexNumber, true
}
