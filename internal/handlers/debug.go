package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"barter-service/internal/history"
	"barter-service/internal/reconcile"
	"barter-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, coordinator *reconcile.Coordinator, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// raw session state, including temporary and soft-deleted entries
	router.GET("/debug/transactions", func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
			return
		}
		txs := coordinator.Session(userID).Transactions(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"user_id":      userID,
			"transactions": txs,
			"history":      history.Aggregate(txs, nil),
		})
	})
}
