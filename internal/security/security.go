// Package security holds HTTP hardening middleware for the JSON API.
package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
)

// Headers adds security headers to every response. hsts should only be set
// when the service is reached over TLS.
func Headers(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		if hsts || c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// DocsPolicy relaxes the content security policy for the bundled Swagger UI,
// which needs same-origin scripts, styles and inline bootstrapping.
func DocsPolicy() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy",
			"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'")
		c.Next()
	}
}

// RequireJSON rejects request bodies that are not declared as JSON.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength == 0 || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		contentType := strings.ToLower(c.GetHeader("Content-Type"))
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			appErr := apperrors.NewValidationError("unsupported content type", contentType)
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, appErr.Response())
			return
		}
		c.Next()
	}
}

// RequestTimeout bounds the request context.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(timeout.Seconds())))
		c.Next()
	}
}

// BodyLimit caps request bodies at limit bytes.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			appErr := apperrors.NewValidationError("request body too large", "limit "+strconv.FormatInt(limit, 10)+" bytes")
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, appErr.Response())
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
