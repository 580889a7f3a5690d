package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error kinds carried in ErrorBody.Error.
const (
	KindBadRequest = "bad_request"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
	KindForbidden  = "forbidden"
	KindTooMany    = "too_many_requests"
	KindInternal   = "internal"
)

// ErrorBody 统一错误响应
type ErrorBody struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Success 200 + 原始数据
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created 201 + 原始数据
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent 204
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 写入错误响应并终止后续 handler
func Error(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Code: status, Error: kind, Message: message})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, KindBadRequest, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, KindNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, KindConflict, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, KindForbidden, message)
}

func TooManyRequests(c *gin.Context) {
	Error(c, http.StatusTooManyRequests, KindTooMany, "rate limit exceeded")
}

// InternalError 不向客户端暴露内部错误细节
func InternalError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	Error(c, http.StatusInternalServerError, KindInternal, "internal server error")
}
