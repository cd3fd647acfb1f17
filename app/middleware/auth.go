package middleware

import (
	"net/http"
	"strings"

	"floortrack/pkg/config"
	"floortrack/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware guards the ingest routes with a shared API key. Vision
// pipelines send it either as a Bearer token or an X-API-Key header.
// With no key configured the check is disabled.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := config.GlobalConfig.Server.APIKey
		if expected == "" {
			c.Next()
			return
		}

		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if presented == "" {
			presented = c.GetHeader("X-API-Key")
		}

		if presented != expected {
			logger.WarnCtx(c.Request.Context(), "ingest request rejected, invalid API key, remote: %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
