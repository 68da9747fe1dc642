package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kestrelstream/broker/internal/logging"
)

// Logger middleware logs each request via the structured logger.
func Logger(l *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		l.LogHTTPRequest(c.Request.Method, path, c.ClientIP(), c.Writer.Status(), time.Since(start), GetRequestID(c))
	}
}
