package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guttosm/rental-manager/internal/metrics"
	"github.com/guttosm/rental-manager/internal/middleware"
)

// RouterConfig holds router configuration options.
type RouterConfig struct {
	Auth           middleware.AuthConfig
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// DefaultRouterConfig returns the default router configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RequestTimeout: 30 * time.Second,
	}
}

// NewRouter creates the admin API engine. Health endpoints and /metrics are
// public; /api requires authentication when cfg.Auth is enabled.
func NewRouter(handler *Handler, healthHandler *HealthHandler, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.CORS(cfg.CORSOrigins),
		middleware.RequestID(),
		middleware.Recovery(),
		metrics.PrometheusMiddleware(),
		middleware.Compression(),
		middleware.RequestLogger(),
		middleware.ErrorHandler(),
	)

	healthHandler.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if handler == nil {
		return router
	}

	api := router.Group("/api")
	api.Use(
		middleware.Authenticate(cfg.Auth),
		middleware.RequestTimeout(cfg.RequestTimeout),
	)
	api.GET("/stats", handler.Stats)
	api.POST("/cache/invalidate", handler.InvalidateCache)
	api.POST("/memory/cleanup", handler.Cleanup)

	return router
}
