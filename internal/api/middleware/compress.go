package middleware

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Gzip 压缩响应体；DELETE 成功时返回 204，不能带 gzip 帧，直接跳过
func Gzip(level int) gin.HandlerFunc {
	gz := gzip.Gzip(level)
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodDelete, http.MethodHead:
			c.Next()
		default:
			gz(c)
		}
	}
}
