package model

import (
	"time"
)

// AuditLog 审计日志模型，记录上传等写操作
type AuditLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	RequestID string `gorm:"size:64;index" json:"requestId"`

	Action   string `gorm:"size:100;not null;index" json:"action"` // 操作类型，如：package.upload, package.publish_version
	Resource string `gorm:"size:100" json:"resource"`              // 操作的资源，如：package:123
	Method   string `gorm:"size:10" json:"method"`                 // HTTP方法
	Path     string `gorm:"size:200" json:"path"`                  // 请求路径
	IP       string `gorm:"size:50" json:"ip"`                     // 请求方IP

	Status  int    `gorm:"not null" json:"status"`  // HTTP状态码
	Message string `gorm:"size:500" json:"message"` // 操作结果消息

	Duration int64 `json:"duration"` // 请求耗时（毫秒）
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_logs"
}

// IsSuccess 操作是否成功
func (a *AuditLog) IsSuccess() bool {
	return a.Status >= 200 && a.Status < 300
}
