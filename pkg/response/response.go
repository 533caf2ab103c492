package response

import (
	"errors"
	"net/http"

	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody 错误信息
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExposeInternalErrors 为 true 时 5xx 返回原始错误信息 (仅开发环境)
var ExposeInternalErrors = false

const internalMessage = "Internal server error"

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, code string, msg string) {
	c.JSON(httpCode, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: msg},
	})
}

// AbortWithError 错误响应并中断后续 handler (中间件使用)
func AbortWithError(c *gin.Context, httpCode int, code string, msg string) {
	c.AbortWithStatusJSON(httpCode, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: msg},
	})
}

// FromError 将业务错误映射为 HTTP 响应
func FromError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	msg := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg = appErr.Message
		if kind == apperr.KindUnprocessable && appErr.Err != nil {
			// 网关错误保留底层信息，便于排查
			msg = appErr.Message + ": " + appErr.Err.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
		if !ExposeInternalErrors {
			msg = internalMessage
		}
	}

	Error(c, status, kind.String(), msg)
}
