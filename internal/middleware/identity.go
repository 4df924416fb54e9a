package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"barter-service/internal/gset"
)

// Identity resolves the caller from the X-User-ID header set by the gateway.
// Websocket handshakes cannot set headers, so the user_id query parameter is
// accepted as well.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		c.Set("userID", gset.NormalizeID(userID))
		c.Next()
	}
}
