package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/timeline-service/internal/service"
	"github.com/d60-Lab/timeline-service/internal/timeline"
	"github.com/d60-Lab/timeline-service/pkg/response"
)

// CreateUser 注册用户
// @Summary 创建用户
// @Tags users
// @Accept json
// @Produce json
// @Param request body createUserRequest true "用户信息"
// @Success 201 {object} UserResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 409 {object} response.ErrorBody
// @Router /users/create [post]
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.CreateUser(c.Request.Context(), service.CreateUserInput{Username: req.Username, Email: req.Email})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, toUserResponse(u))
}

// GetUser 查询用户
// @Summary 查询用户
// @Tags users
// @Produce json
// @Param id path int true "用户ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} response.ErrorBody
// @Router /users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.userService.GetUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, toUserResponse(u))
}

// ListUserPosts 某用户的时间线
// @Summary 查询用户帖子
// @Tags users
// @Produce json
// @Param id path int true "用户ID"
// @Param page query int false "页码，从 0 开始" default(0)
// @Param size query int false "每页数量，最大 10" default(10)
// @Success 200 {object} PageResponse
// @Failure 400 {object} response.ErrorBody
// @Router /users/{id}/posts [get]
// @Router /posts/user/{id} [get]
func (h *Handler) ListUserPosts(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if id <= 0 {
		response.BadRequest(c, "id must be a positive integer")
		return
	}
	h.listPosts(c, timeline.ByUser(id))
}
