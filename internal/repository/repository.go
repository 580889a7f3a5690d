package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/timeline-service/internal/model"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	// Create 写入用户，用户名或邮箱重复返回 apperr.ErrConflict
	Create(ctx context.Context, user *model.User) error

	// GetByID 根据ID查询用户
	GetByID(ctx context.Context, id int64) (*model.User, error)

	// GetByUsername 根据用户名查询用户
	GetByUsername(ctx context.Context, username string) (*model.User, error)

	// GetByEmail 根据邮箱查询用户
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// PostRepository 帖子仓储接口
type PostRepository interface {
	// Create 写入帖子
	Create(ctx context.Context, post *model.Post) error

	// GetByID 根据ID查询帖子
	GetByID(ctx context.Context, id int64) (*model.Post, error)

	// GetByIDs 批量查询，结果保持 ids 的顺序，缺失的 id 被跳过
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Post, error)

	// Update 覆盖标题、描述、媒体和更新时间
	Update(ctx context.Context, post *model.Post) error

	// Delete 删除帖子
	Delete(ctx context.Context, id int64) error

	// Keys 返回全部帖子的排序键，用于重建时间线
	Keys(ctx context.Context) ([]PostKey, error)
}

// PostKey 时间线排序所需的最小字段
type PostKey struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
}

// Models lists the tables owned by the gorm repositories.
func Models() []interface{} {
	return []interface{}{&model.User{}, &model.Post{}}
}

// MaxIDs returns the largest user and post ids stored in db.
func MaxIDs(ctx context.Context, db *gorm.DB) (users, posts int64, err error) {
	if err = db.WithContext(ctx).Model(&model.User{}).Select("COALESCE(MAX(id), 0)").Scan(&users).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).Model(&model.Post{}).Select("COALESCE(MAX(id), 0)").Scan(&posts).Error; err != nil {
		return 0, 0, err
	}
	return users, posts, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}

func orderByIDs(ids []int64, rows []*model.Post) []*model.Post {
	byID := make(map[int64]*model.Post, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	out := make([]*model.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
