package handler

import (
	"net/http"
	"time"

	"github.com/erp/pos/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping() error
}

// Health returns a handler for the health check endpoint.
// A nil db means the server runs without a catalog.
func Health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "disabled"
		if db != nil {
			if err := db.Ping(); err != nil {
				logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unhealthy",
					"time":     time.Now().Format(time.RFC3339),
					"database": "error",
				})
				return
			}
			status = "ok"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": status,
		})
	}
}
