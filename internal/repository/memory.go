package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/d60-Lab/timeline-service/internal/apperr"
	"github.com/d60-Lab/timeline-service/internal/model"
)

// MemoryUserRepository 进程内用户目录
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[int64]*model.User
	byUsername map[string]int64
	byEmail    map[string]int64
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       make(map[int64]*model.User),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[user.Username]; ok {
		return apperr.Conflictf("username %q already taken", user.Username)
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return apperr.Conflictf("email %q already taken", user.Email)
	}
	if _, ok := r.byID[user.ID]; ok {
		return apperr.Conflictf("user %d already exists", user.ID)
	}
	cp := *user
	r.byID[user.ID] = &cp
	r.byUsername[user.Username] = user.ID
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFoundf("user %d", id)
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	id, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFoundf("user %q", username)
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFoundf("user %q", email)
	}
	return r.GetByID(ctx, id)
}

// MemoryPostRepository 进程内帖子存储，读写都做深拷贝
type MemoryPostRepository struct {
	mu    sync.RWMutex
	posts map[int64]*model.Post
}

func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{posts: make(map[int64]*model.Post)}
}

func (r *MemoryPostRepository) Create(_ context.Context, post *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.ID]; ok {
		return apperr.Conflictf("post %d already exists", post.ID)
	}
	r.posts[post.ID] = post.Clone()
	return nil
}

func (r *MemoryPostRepository) GetByID(_ context.Context, id int64) (*model.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, apperr.NotFoundf("post %d", id)
	}
	return p.Clone(), nil
}

func (r *MemoryPostRepository) GetByIDs(_ context.Context, ids []int64) ([]*model.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.posts[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *MemoryPostRepository) Update(_ context.Context, post *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.posts[post.ID]
	if !ok {
		return apperr.NotFoundf("post %d", post.ID)
	}
	next := cur.Clone()
	next.Title = post.Title
	next.Description = post.Description
	next.MediaFiles = post.Clone().MediaFiles
	next.UpdatedAt = post.UpdatedAt
	r.posts[post.ID] = next
	return nil
}

func (r *MemoryPostRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return apperr.NotFoundf("post %d", id)
	}
	delete(r.posts, id)
	return nil
}

func (r *MemoryPostRepository) Keys(_ context.Context) ([]PostKey, error) {
	r.mu.RLock()
	keys := make([]PostKey, 0, len(r.posts))
	for _, p := range r.posts {
		keys = append(keys, PostKey{ID: p.ID, UserID: p.UserID, CreatedAt: p.CreatedAt})
	}
	r.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}
