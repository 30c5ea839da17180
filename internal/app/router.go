package app

import (
	"github.com/gin-gonic/gin"

	"github.com/guttosm/rental-manager/config"
	api "github.com/guttosm/rental-manager/internal/http"
	"github.com/guttosm/rental-manager/internal/middleware"
)

// InitializeHealth registers every backend the readiness check covers.
func (c *Components) InitializeHealth() *api.HealthHandler {
	health := api.NewHealthHandler()
	health.RegisterChecker("sqlite", c.Database.SQLite)
	health.RegisterCircuitBreaker("sqlite", c.Database.Breaker)
	if c.Samples != nil {
		health.RegisterChecker("mongodb", c.Samples.Mongo)
		health.RegisterCircuitBreaker("mongodb", c.Samples.Breaker)
	}
	return health
}

// InitializeRouter builds the admin API engine.
func InitializeRouter(cfg *config.Config, handler *api.Handler, health *api.HealthHandler) *gin.Engine {
	routerCfg := api.DefaultRouterConfig()
	routerCfg.CORSOrigins = cfg.Server.CORSOrigins
	routerCfg.RequestTimeout = cfg.Server.RequestTimeout
	routerCfg.Auth = middleware.AuthConfig{
		Enabled:   cfg.Auth.Enabled,
		APIKeys:   cfg.Auth.APIKeys,
		JWTSecret: []byte(cfg.Auth.JWTSecretKey),
	}
	return api.NewRouter(handler, health, routerCfg)
}
