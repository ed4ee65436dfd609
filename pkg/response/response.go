package response

import (
	"net/http"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Response API响应结构
// Code 与HTTP状态码一致，ErrorCode 为业务错误码，仅在出错时返回
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	ErrorCode int         `json:"errorCode,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, "请求成功", data)
}

// SuccessWithMessage 返回带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      http.StatusOK,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Created 返回201创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:      http.StatusCreated,
		Message:   "上传成功",
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Error 返回错误响应
func Error(c *gin.Context, err *errors.APIError) {
	status := err.GetHTTPStatus()

	var data interface{}
	if len(err.Details) > 0 {
		data = err.Details
	}

	c.JSON(status, Response{
		Code:      status,
		Message:   err.Message,
		Data:      data,
		ErrorCode: int(err.Code),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// ErrorWithMessage 返回带自定义消息的错误响应
func ErrorWithMessage(c *gin.Context, code errors.ErrorCode, message string) {
	Error(c, errors.New(code, message))
}

// BadRequest 返回400错误
func BadRequest(c *gin.Context, message string) {
	ErrorWithMessage(c, errors.ErrInvalidParams, message)
}

// NotFound 返回404错误
func NotFound(c *gin.Context, message string) {
	ErrorWithMessage(c, errors.ErrNotFound, message)
}

// FromError 将任意错误转换为响应，非APIError一律视为服务器内部错误
func FromError(c *gin.Context, err error) {
	if apiErr, ok := errors.As(err); ok {
		Error(c, apiErr)
		return
	}
	Error(c, errors.ErrInternalServerMsg)
}
