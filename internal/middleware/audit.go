package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	auditActionKey   = "audit_action"
	auditResourceKey = "audit_resource"
	auditMessageKey  = "audit_message"
)

// SetAudit 由处理器标记需要审计的操作
func SetAudit(c *gin.Context, action, resource, message string) {
	c.Set(auditActionKey, action)
	c.Set(auditResourceKey, resource)
	c.Set(auditMessageKey, message)
}

// Auditor 审计日志记录器，异步写入，关闭数据库前需调用 Wait
type Auditor struct {
	auditRepo repository.AuditLogRepository
	logger    *zap.Logger
	pending   sync.WaitGroup
}

// NewAuditor 创建审计日志记录器
func NewAuditor(auditRepo repository.AuditLogRepository, logger *zap.Logger) *Auditor {
	return &Auditor{auditRepo: auditRepo, logger: logger}
}

// Middleware 审计日志中间件，只记录处理器通过 SetAudit 标记的请求
func (a *Auditor) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 处理请求
		c.Next()

		action := c.GetString(auditActionKey)
		if action == "" {
			return
		}

		// gin.Context 会被复用，先取出需要的字段
		log := &model.AuditLog{
			RequestID: GetRequestID(c),
			Action:    action,
			Resource:  c.GetString(auditResourceKey),
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			Status:    c.Writer.Status(),
			Message:   truncate(c.GetString(auditMessageKey), 500),
			Duration:  time.Since(start).Milliseconds(),
		}

		a.pending.Add(1)
		go func() {
			defer a.pending.Done()
			a.write(log)
		}()
	}
}

func (a *Auditor) write(log *model.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.auditRepo.Create(ctx, log); err != nil {
		a.logger.Error("failed to create audit log",
			zap.String("request_id", log.RequestID),
			zap.String("action", log.Action),
			zap.Error(err))
	}
}

// Wait 等待已提交的审计日志写完
func (a *Auditor) Wait() {
	a.pending.Wait()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
