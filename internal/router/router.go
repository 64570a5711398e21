// Package router HTTP 路由与中间件
package router

import (
	"net/http"

	"github.com/deptrack/deptrack/internal/config"
	adminhandlers "github.com/deptrack/deptrack/internal/http/handlers/admin"
	ingesthandlers "github.com/deptrack/deptrack/internal/http/handlers/ingest"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	ingestHandler := ingesthandlers.NewHandler(c.IngestService)
	adminHandler := adminhandlers.NewHandler(c.PartnerService, c.Metrics)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		// 采集端点：合作伙伴页面直接调用
		apiV1.POST("/track", ingestHandler.Collect)
		apiV1.GET("/pixel.gif", ingestHandler.Pixel)

		// 管理端只读接口
		admin := apiV1.Group("/admin")
		admin.Use(AdminJWTMiddleware(cfg.AdminJWT.SecretKey))
		{
			admin.GET("/partners/:partner_id", adminHandler.PartnerDetail)
			admin.GET("/partners/:partner_id/metrics", adminHandler.PartnerMetrics)
		}
	}

	return r
}
