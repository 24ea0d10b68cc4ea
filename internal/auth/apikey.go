package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Header carries the operator API key on every /v1 request.
const Header = "X-IDV-Key"

// APIKeyMiddleware guards the verification API. An empty configured key
// disables the check, which keeps local development friction-free.
//
// Browser WebSocket clients cannot set custom headers, so the dashboard
// connection may carry the key in the api_key query parameter instead.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	key := []byte(apiKey)
	return func(c *gin.Context) {
		if len(key) == 0 {
			c.Next()
			return
		}

		provided := c.GetHeader(Header)
		if provided == "" {
			provided = c.Query("api_key")
		}
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), key) != 1 {
			slog.Warn("rejected API key", "ip", c.ClientIP(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}
