// Package router builds the gin engine and mounts module routes.
package router

import (
	"net/http"

	"wa_attribution_backend/internal/http/middleware"
	"wa_attribution_backend/internal/http/response"
	"wa_attribution_backend/platform/config"
	"wa_attribution_backend/platform/db"
	"wa_attribution_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Module is a bounded context that mounts routes under /api/v1.
type Module interface {
	Name() string
	RegisterRoutes(v1 *gin.RouterGroup)
}

// New builds the HTTP engine: recovery, request logging, CORS, health check
// and module routes.
func New(cfg config.HTTPConfig, log *logger.Logger, health db.Pinger, modules ...Module) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(log))
	engine.Use(corsMiddleware(cfg))

	engine.GET("/api/health", func(c *gin.Context) {
		if err := health.Ping(c.Request.Context()); err != nil {
			response.Error(c, http.StatusServiceUnavailable, "database unreachable", nil)
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")
	for _, m := range modules {
		m.RegisterRoutes(v1)
		log.Debug("module routes registered", "module", m.Name())
	}

	return engine
}

func corsMiddleware(cfg config.HTTPConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.APIKeyHeader},
		AllowCredentials: cfg.GetCORSAllowCreds(),
	}

	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.GetCORSOrigins()
	}

	return cors.New(corsCfg)
}
