package ws

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"barter-service/internal/observability"
)

// ConnInfo describes one websocket connection for lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(c *gin.Context, userID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceID(c.Request),
		IP:          observability.ClientIP(c.Request),
		RequestID:   observability.RequestID(c),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

func (info ConnInfo) lifecyclePayload(event, reason string) map[string]any {
	return map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":    info.UserID,
			"device_id":  info.DeviceID,
			"ip":         info.IP,
			"request_id": info.RequestID,
		},
	}
}
