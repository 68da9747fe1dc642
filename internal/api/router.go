package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelstream/broker/internal/config"
	"github.com/kestrelstream/broker/internal/logging"
	"github.com/kestrelstream/broker/internal/metrics"
	"github.com/kestrelstream/broker/internal/middleware"
)

// NewRouter wires the three spec endpoints plus the ambient /healthz,
// /metrics, and static-asset routes onto a fresh gin engine.
func NewRouter(f *Facade, cfg *config.Config, logger *logging.Logger, staticDir string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(metricsMiddleware())

	router.GET("/healthz", f.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if staticDir != "" {
		router.Static("/static", staticDir)
	}

	router.GET("/api/streams", f.ListStreams)

	limiter := middleware.NewRateLimiter(5, 10)

	protected := router.Group("/api")
	// Empty or absent api_keys disables auth (development mode) per the
	// configuration contract: skip the middleware entirely rather than
	// installing a KeyAuth that could never let anything through.
	if len(cfg.APIKeys) > 0 {
		protected.Use(middleware.KeyAuth(cfg.APIKeys))
	}
	protected.Use(middleware.RateLimit(limiter))
	{
		protected.POST("/play", f.Play)
		protected.POST("/heartbeat", f.Heartbeat)
	}

	return router
}

// metricsMiddleware records broker_http_requests_total and
// broker_http_request_duration_seconds for every request.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start).Seconds())
	}
}
