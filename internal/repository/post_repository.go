package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/timeline-service/internal/apperr"
	"github.com/d60-Lab/timeline-service/internal/model"
)

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		if isDuplicateKey(err) {
			return apperr.Conflictf("post %d already exists", post.ID)
		}
		return err
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("post %d", id)
		}
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Post, error) {
	if len(ids) == 0 {
		return []*model.Post{}, nil
	}
	var rows []*model.Post
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return orderByIDs(ids, rows), nil
}

func (r *postRepository) Update(ctx context.Context, post *model.Post) error {
	// struct + Select 才会走 json serializer，并允许写入零值
	res := r.db.WithContext(ctx).
		Model(&model.Post{ID: post.ID}).
		Select("title", "description", "media_files", "updated_at").
		Updates(post)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("post %d", post.ID)
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Post{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("post %d", id)
	}
	return nil
}

func (r *postRepository) Keys(ctx context.Context) ([]PostKey, error) {
	var rows []model.Post
	if err := r.db.WithContext(ctx).
		Select("id", "user_id", "created_at").
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	keys := make([]PostKey, len(rows))
	for i, p := range rows {
		keys[i] = PostKey{ID: p.ID, UserID: p.UserID, CreatedAt: p.CreatedAt}
	}
	return keys, nil
}
