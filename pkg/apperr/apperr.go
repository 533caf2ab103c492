// Package apperr 定义业务错误分类
//
// 所有业务层错误都归入一个封闭的 Kind 集合，HTTP 状态码只在传输层 (pkg/response) 映射。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnprocessable
)

var kindNames = map[Kind]string{
	KindInternal:      "INTERNAL_ERROR",
	KindBadRequest:    "BAD_REQUEST",
	KindValidation:    "VALIDATION_ERROR",
	KindUnauthorized:  "UNAUTHORIZED",
	KindForbidden:     "FORBIDDEN",
	KindNotFound:      "NOT_FOUND",
	KindConflict:      "CONFLICT",
	KindUnprocessable: "UNPROCESSABLE",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// HTTPStatus 返回对应的 HTTP 状态码
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest, KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error 业务错误
type Error struct {
	Kind    Kind
	Message string
	Context map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With 附加上下文字段，返回同一个错误便于链式调用
func (e *Error) With(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New 创建错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf 创建格式化消息的错误
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func BadRequest(message string) *Error    { return New(KindBadRequest, message) }
func Validation(message string) *Error    { return New(KindValidation, message) }
func Unauthorized(message string) *Error  { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error     { return New(KindForbidden, message) }
func NotFound(message string) *Error      { return New(KindNotFound, message) }
func Conflict(message string) *Error      { return New(KindConflict, message) }
func Unprocessable(message string) *Error { return New(KindUnprocessable, message) }

// Internal 包装非预期的持久化或网关错误
func Internal(err error, message string) *Error {
	return Wrap(KindInternal, err, message)
}

// KindOf 返回错误类别，非 *Error 一律视为 Internal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
