package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"alerting-service/internal/logging"
)

// RequestLoggingMiddleware logs one line per request with status and
// latency. The websocket endpoint is skipped; its connection can stay open
// for hours and would log a misleading latency on close.
func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}
		c.Next()
		if c.IsWebsocket() {
			return
		}
		logger.Infof("Request: %s %s, Status: %d, Latency: %v",
			c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
