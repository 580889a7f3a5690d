package handler

import (
	"errors"
	"net/http"
	"strconv"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-service/internal/api/middleware"
	"github.com/d60-Lab/timeline-service/internal/apperr"
	"github.com/d60-Lab/timeline-service/internal/service"
	"github.com/d60-Lab/timeline-service/pkg/logger"
	"github.com/d60-Lab/timeline-service/pkg/response"
)

// Handler HTTP 入口，是错误类型到状态码的唯一转换点
type Handler struct {
	userService     service.UserService
	postService     service.PostService
	defaultPageSize int
}

// Option 可选配置
type Option func(*Handler)

// WithDefaultPageSize 未传 size 时使用的每页数量
func WithDefaultPageSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.defaultPageSize = n
		}
	}
}

func NewHandler(userService service.UserService, postService service.PostService, opts ...Option) *Handler {
	h := &Handler{userService: userService, postService: postService, defaultPageSize: defaultPageSize}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health 存活检查
// @Summary 健康检查
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, apperr.ErrInvalidArgument):
		response.BadRequest(c, err.Error())
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		response.InternalError(c, err)
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		response.BadRequest(c, name+" must be an integer")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

// queryUserID returns (0, true) when the parameter is absent.
func queryUserID(c *gin.Context) (int64, bool) {
	raw, ok := c.GetQuery("userId")
	if !ok || raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		response.BadRequest(c, "userId must be a positive integer")
		return 0, false
	}
	return v, true
}
