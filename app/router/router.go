package router

import (
	"net/http"

	"floortrack/app/handler"
	"floortrack/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	ingestHandler    *handler.IngestHandler
	dashboardHandler *handler.DashboardHandler
	streamHandler    *handler.StreamHandler
}

// NewRouter creates a new Router
func NewRouter(ingestHandler *handler.IngestHandler, dashboardHandler *handler.DashboardHandler, streamHandler *handler.StreamHandler) *Router {
	return &Router{
		ingestHandler:    ingestHandler,
		dashboardHandler: dashboardHandler,
		streamHandler:    streamHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// V1 API - vision pipeline ingest interface
	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		ingest := v1.Group("/ingest")
		{
			ingest.POST("/detections", r.ingestHandler.Detections)
			ingest.POST("/identity", r.ingestHandler.Identity)
		}
	}

	// API v1 - dashboard interface
	api := engine.Group("/api/v1")
	{
		api.GET("/snapshot", r.dashboardHandler.Snapshot)
		api.GET("/tracks", r.dashboardHandler.Tracks)
		api.GET("/stream", r.streamHandler.Stream)

		records := api.Group("/index-records")
		{
			records.GET("", r.dashboardHandler.IndexRecords)
			records.POST("/:index_number/finalize", r.dashboardHandler.FinalizeIndex)
			records.POST("/:index_number/reopen", r.dashboardHandler.ReopenIndex)
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("", r.dashboardHandler.Alerts)
			alerts.POST("/:alert_id/ack", r.dashboardHandler.AcknowledgeAlert)
		}

		anomalies := api.Group("/anomalies")
		{
			anomalies.GET("", r.dashboardHandler.Anomalies)
			anomalies.POST("/:anomaly_id/resolve", r.dashboardHandler.ResolveAnomaly)
		}
	}
}
