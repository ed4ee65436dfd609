package middleware

import (
	"runtime/debug"

	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/errors"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery 错误恢复中间件
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())),
					zap.String("request_id", GetRequestID(c)),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)

				// 已开始写下载流时无法再返回JSON
				if !c.Writer.Written() {
					response.Error(c, errors.ErrInternalServerMsg)
				}
				c.Abort()
			}
		}()

		c.Next()
	}
}
