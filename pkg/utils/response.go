// Package utils 提供HTTP响应等通用辅助
package utils

import (
	"github.com/gofiber/fiber/v2"

	"proxywatch/pkg/common"
)

// 定义常用的状态码
const (
	// 成功状态码，与前端约定为20000
	StatusSuccess = 20000
	// 参数错误状态码
	StatusBadRequest = 40000
	// 资源不存在状态码
	StatusNotFound = 40400
	// 冲突状态码
	StatusConflict = 40900
	// 服务器内部错误状态码
	StatusInternalError = 50000
)

// Response 统一返回结构体
type Response struct {
	// 状态码，与前端约定为20000表示成功
	Code int `json:"code"`
	// 消息内容
	Msg string `json:"msg"`
	// 数据内容
	Data interface{} `json:"data,omitempty"`
}

// Success 返回成功响应
func Success(data interface{}) *Response {
	return &Response{Code: StatusSuccess, Msg: "success", Data: data}
}

// Fail 返回失败响应
func Fail(code int, msg string) *Response {
	return &Response{Code: code, Msg: msg}
}

// SuccessResponse 返回成功响应的辅助函数
func SuccessResponse(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Success(data))
}

// FailResponse 返回失败响应的辅助函数
func FailResponse(c *fiber.Ctx, code int, msg string) error {
	return c.Status(fiber.StatusOK).JSON(Fail(code, msg))
}

// ErrorResponse 由错误生成的失败响应，按AppError类型映射状态码
func ErrorResponse(c *fiber.Ctx, err error) error {
	appErr := common.ToAppError(err)

	code := StatusInternalError
	switch appErr.Type {
	case common.ErrorTypeValidation:
		code = StatusBadRequest
	case common.ErrorTypeNotFound:
		code = StatusNotFound
	case common.ErrorTypeConflict:
		code = StatusConflict
	}

	return c.Status(fiber.StatusOK).JSON(Fail(code, appErr.Message))
}
