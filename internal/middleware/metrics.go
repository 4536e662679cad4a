package middleware

import (
	"strconv"
	"time"

	"github.com/freelancehub/backend/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// HTTPMetrics observes request latency by route pattern.
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
