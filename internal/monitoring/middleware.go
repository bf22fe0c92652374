package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// MonitoringMiddleware records every request in metrics and prom (either may be
// nil) and logs it.
func MonitoringMiddleware(metrics *Metrics, prom *Prometheus, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if metrics != nil {
			metrics.IncrementRequest()
			metrics.RecordResponseTime(duration)
			metrics.RecordRequestByStatus(status)
			if status >= 400 {
				metrics.IncrementError()
			}
		}
		if prom != nil {
			prom.ObserveRequest(c.Request.Method, route, status, duration)
		}
		if logger == nil {
			return
		}

		logger.RequestLogger(c.Request.Method, c.Request.URL.Path, c.ClientIP(), status, duration)
		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, c.Request.Method, c.Request.URL.Path, c.ClientIP(), status)
		}
		if duration > 5*time.Second {
			logger.Warn("Slow request", "path", c.Request.URL.Path, "duration_ms", duration.Milliseconds())
		}
	}
}
