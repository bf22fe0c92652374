package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
)

// Middleware enforces the per-IP limit and sets X-RateLimit-* headers.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Enabled() {
			c.Next()
			return
		}

		result := l.AllowIP(c.Request.Context(), c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if result.Allowed {
			c.Next()
			return
		}

		if l.metrics != nil {
			l.metrics.IncrementRateLimitBlock()
		}
		if l.prom != nil {
			l.prom.RateLimited.Inc()
		}
		retryAfter := max(int(result.RetryAfter.Seconds()+0.999), 1)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		appErr := apperrors.NewRateLimitError(strconv.Itoa(retryAfter) + "s")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, appErr.Response())
	}
}
