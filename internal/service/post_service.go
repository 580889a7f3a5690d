package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-service/internal/apperr"
	"github.com/d60-Lab/timeline-service/internal/idgen"
	"github.com/d60-Lab/timeline-service/internal/model"
	"github.com/d60-Lab/timeline-service/internal/repository"
	"github.com/d60-Lab/timeline-service/internal/timeline"
	"github.com/d60-Lab/timeline-service/pkg/logger"
)

// DefaultMaxPageSize 单页上限，超出部分被截断
const DefaultMaxPageSize = 10

// CreatePostInput 创建帖子参数
type CreatePostInput struct {
	UserID      int64
	Title       string
	Description string
	MediaFiles  []model.Media
}

// UpdatePostInput nil 字段保持原值；UserID 非 nil 时校验作者
type UpdatePostInput struct {
	UserID      *int64
	Title       *string
	Description *string
	MediaFiles  *[]model.Media
}

// PostPage 一页帖子，按创建时间倒序
type PostPage struct {
	Posts   []*model.Post
	Page    int
	Size    int
	HasMore bool
	Total   int64
}

// TotalPages 按当前 size 计算的总页数
func (p *PostPage) TotalPages() int64 {
	if p.Size <= 0 {
		return 0
	}
	return (p.Total + int64(p.Size) - 1) / int64(p.Size)
}

// PostService 帖子读写与时间线维护
type PostService interface {
	CreatePost(ctx context.Context, in CreatePostInput) (*model.Post, error)
	GetPost(ctx context.Context, id int64) (*model.Post, error)
	UpdatePost(ctx context.Context, id int64, in UpdatePostInput) (*model.Post, error)
	DeletePost(ctx context.Context, id int64, userID *int64) error
	ListPosts(ctx context.Context, f timeline.Filter, page, size int) (*PostPage, error)
	RebuildTimeline(ctx context.Context) error
}

type postContent struct {
	Title       string        `validate:"required,max=255"`
	Description string        `validate:"max=2000"`
	MediaFiles  []model.Media `validate:"dive"`
}

func (c postContent) validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return apperr.InvalidArgumentf("title is required")
	}
	return validateStruct(c)
}

// PostOption 可选配置
type PostOption func(*postService)

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) PostOption {
	return func(s *postService) { s.now = now }
}

func WithMaxPageSize(n int) PostOption {
	return func(s *postService) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

func WithEvents(d *EventDispatcher) PostOption {
	return func(s *postService) { s.events = d }
}

type postService struct {
	posts repository.PostRepository
	users repository.UserRepository
	index timeline.Index
	ids   idgen.Allocator

	// membership 保护 store 与 index 的一致性：增删持写锁，读与更新持读锁。
	// 加锁顺序：先 per-id 分段锁，再 membership。
	membership sync.RWMutex
	perID      stripedLock
	lastStamp  time.Time // guarded by membership write lock

	now         func() time.Time
	maxPageSize int
	events      *EventDispatcher
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, index timeline.Index, ids idgen.Allocator, opts ...PostOption) PostService {
	s := &postService{
		posts:       posts,
		users:       users,
		index:       index,
		ids:         ids,
		now:         time.Now,
		maxPageSize: DefaultMaxPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *postService) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// nextCreatedAt is strictly increasing so the newest post always leads its
// timelines. Caller holds the membership write lock.
func (s *postService) nextCreatedAt() time.Time {
	t := s.stamp()
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

func entryOf(p *model.Post) timeline.Entry {
	return timeline.Entry{PostID: p.ID, UserID: p.UserID, CreatedAt: p.CreatedAt}
}

// CreatePost 校验作者存在，分配 id，写入存储与时间线
func (s *postService) CreatePost(ctx context.Context, in CreatePostInput) (*model.Post, error) {
	content := postContent{Title: in.Title, Description: in.Description, MediaFiles: in.MediaFiles}
	if err := content.validate(); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, in.UserID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFoundf("user %d", in.UserID)
		}
		return nil, err
	}

	id, err := s.ids.Next(ctx, idgen.KindPost)
	if err != nil {
		return nil, fmt.Errorf("allocate post id: %w", err)
	}
	media := in.MediaFiles
	if media == nil {
		media = []model.Media{}
	}
	post := &model.Post{
		ID:          id,
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		MediaFiles:  media,
	}

	s.membership.Lock()
	post.CreatedAt = s.nextCreatedAt()
	post.UpdatedAt = post.CreatedAt
	err = s.insert(ctx, post)
	s.membership.Unlock()
	if err != nil {
		return nil, err
	}

	logger.Info("post created", zap.Int64("post_id", post.ID), zap.Int64("user_id", post.UserID))
	s.events.Enqueue(ctx, newPostEvent(EventPostCreated, post, post.CreatedAt))
	return post.Clone(), nil
}

func (s *postService) insert(ctx context.Context, post *model.Post) error {
	if err := s.posts.Create(ctx, post); err != nil {
		return err
	}
	if err := s.index.Insert(ctx, entryOf(post)); err != nil {
		if rbErr := s.posts.Delete(ctx, post.ID); rbErr != nil {
			logger.Error("rollback post after index failure", zap.Int64("post_id", post.ID), zap.Error(rbErr))
		}
		return fmt.Errorf("index post %d: %w", post.ID, err)
	}
	return nil
}

func (s *postService) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	s.membership.RLock()
	defer s.membership.RUnlock()
	return s.posts.GetByID(ctx, id)
}

// UpdatePost 替换内容并刷新 updatedAt，时间线位置不变
func (s *postService) UpdatePost(ctx context.Context, id int64, in UpdatePostInput) (*model.Post, error) {
	unlock := s.perID.lock(id)
	defer unlock()
	s.membership.RLock()
	defer s.membership.RUnlock()

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.UserID != nil && *in.UserID != post.UserID {
		return nil, apperr.Forbiddenf("post %d belongs to another user", id)
	}

	if in.Title != nil {
		post.Title = *in.Title
	}
	if in.Description != nil {
		post.Description = *in.Description
	}
	if in.MediaFiles != nil {
		post.MediaFiles = *in.MediaFiles
		if post.MediaFiles == nil {
			post.MediaFiles = []model.Media{}
		}
	}
	content := postContent{Title: post.Title, Description: post.Description, MediaFiles: post.MediaFiles}
	if err := content.validate(); err != nil {
		return nil, err
	}

	post.UpdatedAt = s.stamp()
	if post.UpdatedAt.Before(post.CreatedAt) {
		post.UpdatedAt = post.CreatedAt
	}
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}

	s.events.Enqueue(ctx, newPostEvent(EventPostUpdated, post, post.UpdatedAt))
	return post, nil
}

// DeletePost 删除帖子及其时间线项；userID 非 nil 时校验作者
func (s *postService) DeletePost(ctx context.Context, id int64, userID *int64) error {
	unlock := s.perID.lock(id)
	defer unlock()
	s.membership.Lock()
	defer s.membership.Unlock()

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if userID != nil && *userID != post.UserID {
		return apperr.Forbiddenf("post %d belongs to another user", id)
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.index.Remove(ctx, entryOf(post)); err != nil {
		if rbErr := s.posts.Create(ctx, post); rbErr != nil {
			logger.Error("restore post after index failure", zap.Int64("post_id", id), zap.Error(rbErr))
		}
		return fmt.Errorf("unindex post %d: %w", id, err)
	}

	logger.Info("post deleted", zap.Int64("post_id", id))
	s.events.Enqueue(ctx, newPostEvent(EventPostDeleted, post, s.stamp()))
	return nil
}

// ListPosts 分页读取时间线；size 超过上限时被截断
func (s *postService) ListPosts(ctx context.Context, f timeline.Filter, page, size int) (*PostPage, error) {
	if page < 0 {
		return nil, apperr.InvalidArgumentf("page must not be negative, got %d", page)
	}
	if size <= 0 {
		return nil, apperr.InvalidArgumentf("size must be positive, got %d", size)
	}
	if size > s.maxPageSize {
		size = s.maxPageSize
	}

	s.membership.RLock()
	defer s.membership.RUnlock()

	tp, err := s.index.Page(ctx, f, page, size)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.GetByIDs(ctx, tp.IDs)
	if err != nil {
		return nil, err
	}
	if len(posts) != len(tp.IDs) {
		logger.Warn("timeline references missing posts",
			zap.Int("indexed", len(tp.IDs)), zap.Int("found", len(posts)))
	}
	return &PostPage{Posts: posts, Page: page, Size: size, HasMore: tp.HasMore, Total: tp.Total}, nil
}

// RebuildTimeline 从存储重建索引，启动时用于 memory/redis 索引
func (s *postService) RebuildTimeline(ctx context.Context) error {
	s.membership.Lock()
	defer s.membership.Unlock()

	keys, err := s.posts.Keys(ctx)
	if err != nil {
		return err
	}
	entries := make([]timeline.Entry, len(keys))
	for i, k := range keys {
		entries[i] = timeline.Entry{PostID: k.ID, UserID: k.UserID, CreatedAt: k.CreatedAt}
		if k.CreatedAt.After(s.lastStamp) {
			s.lastStamp = k.CreatedAt
		}
	}
	if err := timeline.Rebuild(ctx, s.index, entries); err != nil {
		return err
	}
	logger.Info("timeline rebuilt", zap.Int("posts", len(entries)))
	return nil
}
