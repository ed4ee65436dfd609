package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode 错误码
type ErrorCode int

const (
	// 0: 成功
	Success ErrorCode = 0

	// 1xxx: 客户端错误
	ErrInvalidParams ErrorCode = 1001 // 参数错误
	ErrNotFound      ErrorCode = 1004 // 资源不存在

	// 2xxx: 包上传与下载错误
	ErrValidation               ErrorCode = 2001 // 包描述字段校验失败
	ErrMalformedDescriptor      ErrorCode = 2002 // 包描述JSON无法解析
	ErrDependency               ErrorCode = 2003 // 依赖项不存在
	ErrIntegrityMismatch        ErrorCode = 2004 // 文件校验值不匹配
	ErrPackageNotFound          ErrorCode = 2005 // 包不存在
	ErrPackageAlreadyExists     ErrorCode = 2006 // 包已存在
	ErrVersionAlreadyExists     ErrorCode = 2007 // 版本已存在
	ErrVersionNotFound          ErrorCode = 2008 // 版本不存在
	ErrArchiveNotFound          ErrorCode = 2009 // 包文件不存在
	ErrPackageMismatch          ErrorCode = 2010 // 新版本与已有包不一致
	ErrArchiveMissingFromUpload ErrorCode = 2011 // 上传请求缺少文件

	// 5xxx: 服务器内部错误
	ErrInternalServer ErrorCode = 5001 // 服务器内部错误
	ErrDatabase       ErrorCode = 5002 // 数据库错误
	ErrIDAllocation   ErrorCode = 5003 // 包序号分配失败
	ErrBlobStore      ErrorCode = 5004 // 文件存储错误
)

// APIError API错误
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details []string  `json:"details,omitempty"` // 可返回给客户端的详细信息

	// cause 原始错误，只用于日志，不会返回给客户端
	cause error
}

// Error 实现error接口
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap 返回原始错误
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is 按错误码比较，便于 errors.Is(err, ErrXxxMsg)
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建API错误
func New(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// NewWithDetails 创建带详细信息的API错误
func NewWithDetails(code ErrorCode, message string, details ...string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Wrap 包装标准错误
func Wrap(code ErrorCode, message string, err error) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		cause:   err,
	}
}

// As 从错误链中取出APIError
func As(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// 预定义的错误
var (
	// 业务错误
	ErrValidationMsg               = New(ErrValidation, "包信息校验失败")
	ErrMalformedDescriptorMsg      = New(ErrMalformedDescriptor, "包信息JSON格式错误")
	ErrDependencyMsg               = New(ErrDependency, "使用不存在的依赖项")
	ErrIntegrityMismatchMsg        = New(ErrIntegrityMismatch, "文件的 SHA256 校验失败")
	ErrPackageNotFoundMsg          = New(ErrPackageNotFound, "未找到包")
	ErrPackageAlreadyExistsMsg     = New(ErrPackageAlreadyExists, "同名同游戏类型的包已存在")
	ErrVersionAlreadyExistsMsg     = New(ErrVersionAlreadyExists, "版本已存在")
	ErrVersionNotFoundMsg          = New(ErrVersionNotFound, "版本不存在")
	ErrArchiveNotFoundMsg          = New(ErrArchiveNotFound, "包文件未找到")
	ErrPackageMismatchMsg          = New(ErrPackageMismatch, "规范名称或游戏类型与已有包不一致")
	ErrArchiveMissingFromUploadMsg = New(ErrArchiveMissingFromUpload, "文件不能为空")

	// 服务器错误
	ErrInternalServerMsg = New(ErrInternalServer, "服务器内部错误")
	ErrDatabaseMsg       = New(ErrDatabase, "数据库错误")
	ErrIDAllocationMsg   = New(ErrIDAllocation, "无法分配包序号")
	ErrBlobStoreMsg      = New(ErrBlobStore, "文件存储错误")
)

// GetHTTPStatus 获取HTTP状态码
func (e *APIError) GetHTTPStatus() int {
	switch {
	case e.Code >= 1000 && e.Code < 2000:
		// 客户端错误
		switch e.Code {
		case ErrNotFound:
			return http.StatusNotFound
		default:
			return http.StatusBadRequest
		}
	case e.Code >= 2000 && e.Code < 3000:
		// 业务错误
		switch e.Code {
		case ErrPackageNotFound, ErrVersionNotFound, ErrArchiveNotFound:
			return http.StatusNotFound
		case ErrPackageAlreadyExists, ErrVersionAlreadyExists:
			return http.StatusConflict
		default:
			return http.StatusBadRequest
		}
	default:
		// 服务器错误
		return http.StatusInternalServerError
	}
}

// IsServerError 是否为服务器内部错误
func (e *APIError) IsServerError() bool {
	return e.GetHTTPStatus() >= http.StatusInternalServerError
}
