package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/version"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewHealthHandler 创建健康检查处理器实例
func NewHealthHandler(db *gorm.DB, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// Check 检查数据库连接，附带版本信息
func (h *HealthHandler) Check(c *gin.Context) {
	status := http.StatusOK
	state := "ok"

	if err := h.ping(c.Request.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}

	c.JSON(status, gin.H{
		"status":  state,
		"version": version.Get(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (h *HealthHandler) ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
