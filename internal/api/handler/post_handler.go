package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/timeline-service/internal/model"
	"github.com/d60-Lab/timeline-service/internal/service"
	"github.com/d60-Lab/timeline-service/internal/timeline"
	"github.com/d60-Lab/timeline-service/pkg/response"
)

const defaultPageSize = 10

// CreatePost 发帖
// @Summary 创建帖子
// @Tags posts
// @Accept json
// @Produce json
// @Param request body postRequest true "帖子内容"
// @Success 201 {object} PostResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /posts/create [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.UserID == nil {
		response.BadRequest(c, "userId is required")
		return
	}
	if req.Content == nil {
		response.BadRequest(c, "content is required")
		return
	}
	in := service.CreatePostInput{
		UserID:      *req.UserID,
		Title:       deref(req.Content.Title),
		Description: deref(req.Content.Description),
	}
	if req.Content.MediaFiles != nil {
		in.MediaFiles = toMedia(*req.Content.MediaFiles)
	}
	p, err := h.postService.CreatePost(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, toPostResponse(p))
}

// GetPost 查询帖子
// @Summary 查询帖子
// @Tags posts
// @Produce json
// @Param id path int true "帖子ID"
// @Success 200 {object} PostResponse
// @Failure 404 {object} response.ErrorBody
// @Router /posts/{id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.postService.GetPost(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, toPostResponse(p))
}

// ListPosts 全局时间线，带 userId 时为该用户时间线
// @Summary 帖子时间线（新帖在前）
// @Tags posts
// @Produce json
// @Param userId query int false "用户ID"
// @Param page query int false "页码，从 0 开始" default(0)
// @Param size query int false "每页数量，最大 10" default(10)
// @Success 200 {object} PageResponse
// @Failure 400 {object} response.ErrorBody
// @Router /posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	f := timeline.AllPosts()
	if userID > 0 {
		f = timeline.ByUser(userID)
	}
	h.listPosts(c, f)
}

func (h *Handler) listPosts(c *gin.Context, f timeline.Filter) {
	page, ok := queryInt(c, "page", 0)
	if !ok {
		return
	}
	size, ok := queryInt(c, "size", h.defaultPageSize)
	if !ok {
		return
	}
	res, err := h.postService.ListPosts(c.Request.Context(), f, page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, toPageResponse(res))
}

// UpdatePost 全量更新，缺省的 description 与 mediaFiles 被清空
// @Summary 更新帖子（全量）
// @Tags posts
// @Accept json
// @Produce json
// @Param id path int true "帖子ID"
// @Param request body postRequest true "帖子内容"
// @Success 200 {object} PostResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /posts/{id} [put]
func (h *Handler) UpdatePost(c *gin.Context) {
	id, req, ok := bindUpdate(c)
	if !ok {
		return
	}
	title := deref(req.Content.Title)
	description := deref(req.Content.Description)
	media := []model.Media{}
	if req.Content.MediaFiles != nil {
		media = toMedia(*req.Content.MediaFiles)
	}
	h.update(c, id, service.UpdatePostInput{
		UserID:      req.UserID,
		Title:       &title,
		Description: &description,
		MediaFiles:  &media,
	})
}

// PatchPost 局部更新，仅修改请求中出现的字段
// @Summary 更新帖子（局部）
// @Tags posts
// @Accept json
// @Produce json
// @Param id path int true "帖子ID"
// @Param request body postRequest true "需要修改的字段"
// @Success 200 {object} PostResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /posts/{id} [patch]
func (h *Handler) PatchPost(c *gin.Context) {
	id, req, ok := bindUpdate(c)
	if !ok {
		return
	}
	in := service.UpdatePostInput{
		UserID:      req.UserID,
		Title:       req.Content.Title,
		Description: req.Content.Description,
	}
	if req.Content.MediaFiles != nil {
		media := toMedia(*req.Content.MediaFiles)
		in.MediaFiles = &media
	}
	h.update(c, id, in)
}

func bindUpdate(c *gin.Context) (int64, *postRequest, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return 0, nil, false
	}
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return 0, nil, false
	}
	if req.Content == nil {
		response.BadRequest(c, "content is required")
		return 0, nil, false
	}
	return id, &req, true
}

func (h *Handler) update(c *gin.Context, id int64, in service.UpdatePostInput) {
	p, err := h.postService.UpdatePost(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, toPostResponse(p))
}

// DeletePost 删除帖子
// @Summary 删除帖子
// @Tags posts
// @Param id path int true "帖子ID"
// @Param userId query int false "作者ID，提供时校验归属"
// @Success 204
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /posts/{id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	var owner *int64
	if userID != 0 {
		owner = &userID
	}
	if err := h.postService.DeletePost(c.Request.Context(), id, owner); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}
