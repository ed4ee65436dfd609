package handler

import (
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/config"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/middleware"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps 构建路由所需的依赖
type RouterDeps struct {
	Package *PackageHandler
	Health  *HealthHandler
	Auditor *middleware.Auditor
	Logger  *zap.Logger
}

// NewRouter 创建 gin 路由
func NewRouter(cfg *config.ServerConfig, deps RouterDeps) *gin.Engine {
	gin.SetMode(cfg.Mode)

	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxMultipartMemory

	// 全局中间件
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.CORS(cfg.AllowOrigins))
	router.Use(deps.Auditor.Middleware())

	router.GET("/health", deps.Health.Check)

	packages := router.Group("/api/packages")
	{
		packages.GET("", deps.Package.List)
		packages.GET("/active", deps.Package.ListActive)
		packages.GET("/last-modified", deps.Package.LastModified)
		packages.GET("/files", deps.Package.Download)
		packages.POST("/upload", deps.Package.Upload)
		packages.GET("/:packageId", deps.Package.Get)
		packages.POST("/:packageId/versions", deps.Package.PublishVersion)
	}

	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "接口不存在")
	})

	return router
}
