package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/vgrab-go/internal/observability"
)

// Metrics records request count, latency and response size per route
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.Writer.Size())
	}
}
