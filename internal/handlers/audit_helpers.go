package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"barter-service/internal/gset"
	"barter-service/internal/observability"
)

func requestIDFromContext(c *gin.Context) string {
	return observability.RequestID(c)
}

func userIDFromContext(c *gin.Context) string {
	if userID := c.GetString("userID"); userID != "" {
		return userID
	}
	return gset.NormalizeID(strings.TrimSpace(c.GetHeader("X-User-ID")))
}
