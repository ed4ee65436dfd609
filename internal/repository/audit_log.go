package repository

import (
	"context"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志数据访问接口
type AuditLogRepository interface {
	// Create 创建审计日志
	Create(ctx context.Context, log *model.AuditLog) error
	// ListByAction 根据操作类型获取审计日志
	ListByAction(ctx context.Context, action string, page, pageSize int) ([]*model.AuditLog, int64, error)
	// ListByResource 根据资源获取审计日志
	ListByResource(ctx context.Context, resource string, page, pageSize int) ([]*model.AuditLog, int64, error)
}

// auditLogRepository 审计日志数据访问实现
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志数据访问实例
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Create 创建审计日志
func (r *auditLogRepository) Create(ctx context.Context, log *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByAction 根据操作类型获取审计日志
func (r *auditLogRepository) ListByAction(ctx context.Context, action string, page, pageSize int) ([]*model.AuditLog, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&model.AuditLog{}).Where("action = ?", action), page, pageSize)
}

// ListByResource 根据资源获取审计日志
func (r *auditLogRepository) ListByResource(ctx context.Context, resource string, page, pageSize int) ([]*model.AuditLog, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&model.AuditLog{}).Where("resource = ?", resource), page, pageSize)
}

func (r *auditLogRepository) list(query *gorm.DB, page, pageSize int) ([]*model.AuditLog, int64, error) {
	var logs []*model.AuditLog
	var total int64

	// 计算总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.
		Offset(offset).
		Limit(pageSize).
		Order("id DESC").
		Find(&logs).Error

	return logs, total, err
}
