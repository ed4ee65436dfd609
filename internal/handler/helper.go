package handler

import (
	"strconv"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/middleware"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/errors"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// parseUintParam 解析URL路径参数为uint，失败返回false
func parseUintParam(c *gin.Context, key string) (uint, bool) {
	return parseUint(c.Param(key))
}

// parseUintQuery 解析查询参数为uint，失败返回false
func parseUintQuery(c *gin.Context, key string) (uint, bool) {
	return parseUint(c.Query(key))
}

func parseUint(valueStr string) (uint, bool) {
	if valueStr == "" {
		return 0, false
	}

	value, err := strconv.ParseUint(valueStr, 10, 32)
	if err != nil || value == 0 {
		return 0, false
	}

	return uint(value), true
}

// fail 输出错误响应，服务器错误记录原因，响应中不包含原因
func fail(c *gin.Context, logger *zap.Logger, err error) {
	_ = c.Error(err)

	apiErr, ok := errors.As(err)
	if !ok || apiErr.IsServerError() {
		logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	response.FromError(c, err)
}
