package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Request metadata headers.
const (
	RequestIDHeader = "X-Request-ID"
	DeviceIDHeader  = "X-Device-Id"
)

const requestIDKey = "request_id"

// RequestIDMiddleware assigns every request an id, taken from the client
// when it sent one, and echoes it on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		RequestID(c)
		c.Next()
	}
}

// RequestID returns the id of the request, generating one on first use.
func RequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(RequestIDHeader, id)
	return id
}

// DeviceID returns the client-reported device id, if any.
func DeviceID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(DeviceIDHeader))
}

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
