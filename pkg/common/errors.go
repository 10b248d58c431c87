package common

import (
	"errors"
	"fmt"
)

// ErrorType 错误类型
type ErrorType uint

const (
	// ErrorTypeNormal 普通错误
	ErrorTypeNormal ErrorType = iota
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation
	// ErrorTypeNotFound 未找到错误
	ErrorTypeNotFound
	// ErrorTypeConflict 冲突错误
	ErrorTypeConflict
)

// AppError 应用错误
type AppError struct {
	// Type 错误类型
	Type ErrorType
	// Message 错误消息
	Message string
	// Err 原始错误
	Err error
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现errors.Unwrap接口
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError 创建验证错误
func NewValidationError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message, Err: err}
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: message, Err: err}
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeConflict, Message: message, Err: err}
}

// ToAppError 将普通错误转换为AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{Type: ErrorTypeNormal, Message: err.Error(), Err: err}
}
