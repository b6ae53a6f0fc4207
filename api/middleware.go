package api

import (
	"time"

	"dutlink-go/internal/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogMiddleware records every API call with outcome and timing.
func RequestLogMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("api request", map[string]any{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}
}
