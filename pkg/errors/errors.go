package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// 错误码
const (
	CodeValidation          = 40001
	CodeUnauthorized        = 40101
	CodeNotFound            = 40401
	CodeConflict            = 40901
	CodeInternal            = 50001
	CodeStorage             = 50002
	CodeProvider            = 50201
	CodeProviderUnavailable = 50301
)

// 哨兵错误，按 Code 匹配：errors.Is(err, ErrNotFound)
var (
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "internal error"}
	ErrStorage             = &Error{Code: CodeStorage, Message: "storage error"}
	ErrProvider            = &Error{Code: CodeProvider, Message: "provider error"}
	ErrProviderUnavailable = &Error{Code: CodeProviderUnavailable, Message: "provider unavailable"}
)

// Error represents a custom error with stack trace
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"` // 原始错误，不序列化
	Stack   string     `json:"stack,omitempty"`
	Context []KeyValue `json:"context,omitempty"`
}

// KeyValue represents a key-value pair for context
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements the errors.Wrapper interface
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// WrapCode wraps an error with code and message
func WrapCode(err error, code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// Is 同 Code 视为同一类错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code != 0 && t.Code == e.Code
}

// Value 返回上下文中 key 对应的值
func (e *Error) Value(key string) string {
	if e == nil {
		return ""
	}
	for _, kv := range e.Context {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// WithContext adds context to an error
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}

	// 创建新的错误实例以避免修改原始错误
	newErr := &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Stack:   e.Stack,
		Context: make([]KeyValue, len(e.Context)),
	}

	// 复制现有上下文
	copy(newErr.Context, e.Context)

	// 添加新上下文
	newErr.Context = append(newErr.Context, KeyValue{Key: key, Value: value})

	return newErr
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// 移除顶部几行（通常是 captureStack 和 Error 相关的调用）
	lines := strings.Split(stack, "\n")
	if len(lines) > 6 {
		stack = strings.Join(lines[6:], "\n")
	}

	return strings.TrimSpace(stack)
}

// GetCode returns the first non-zero code in the chain
func GetCode(err error) int {
	for err != nil {
		var e *Error
		if !stderrs.As(err, &e) {
			return 0
		}
		if e.Code != 0 {
			return e.Code
		}
		err = e.Err
	}
	return 0
}

// As 返回链上第一个带 Code 的 *Error
func As(err error) (*Error, bool) {
	for err != nil {
		var e *Error
		if !stderrs.As(err, &e) {
			return nil, false
		}
		if e.Code != 0 {
			return e, true
		}
		err = e.Err
	}
	return nil, false
}

// HTTPStatus 错误码到 HTTP 状态码
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeProvider:
		return http.StatusBadGateway
	case CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
