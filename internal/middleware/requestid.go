package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the response header carrying the per-request
// correlation ID, echoed back if the caller already supplied one.
const RequestIDHeader = "X-Request-Id"

// RequestIDContextKey is the gin context key the ID is stored under.
const RequestIDContextKey = "request_id"

// RequestID assigns a UUID to every request that doesn't already carry one,
// so a single session's spawn/probe/heartbeat calls can be correlated in
// the access log. The ID is not attached to tracing spans or audit rows.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(RequestIDContextKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID stashed by RequestID, if present.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(RequestIDContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
