package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"wa_attribution_backend/internal/http/response"
	"wa_attribution_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader authenticates webhook callers.
const APIKeyHeader = "X-Api-Key"

// RequestLogger logs every request with latency and status.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.HTTPRequest(
			c.Request.Method,
			c.FullPath(),
			c.Writer.Status(),
			float64(time.Since(start).Microseconds())/1000.0,
			c.ClientIP(),
		)
	}
}

// RequireAPIKey guards webhook routes with a shared secret. When no key is
// configured the routes are disabled rather than left open.
func RequireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			response.Error(c, http.StatusServiceUnavailable, "webhook api key not configured", nil)
			c.Abort()
			return
		}

		provided := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			response.Error(c, http.StatusUnauthorized, "invalid api key", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}
