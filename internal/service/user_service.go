package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-service/internal/apperr"
	"github.com/d60-Lab/timeline-service/internal/idgen"
	"github.com/d60-Lab/timeline-service/internal/model"
	"github.com/d60-Lab/timeline-service/internal/repository"
	"github.com/d60-Lab/timeline-service/pkg/logger"
)

// CreateUserInput 注册参数
type CreateUserInput struct {
	Username string `validate:"required,max=64"`
	Email    string `validate:"required,email,max=255"`
}

// UserService 用户目录
type UserService interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

type userService struct {
	users repository.UserRepository
	ids   idgen.Allocator
	now   func() time.Time
}

func NewUserService(users repository.UserRepository, ids idgen.Allocator) UserService {
	return &userService{users: users, ids: ids, now: time.Now}
}

// CreateUser 用户名与邮箱均唯一（大小写敏感）
func (s *userService) CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	// 先查一次，避免为必然冲突的请求消耗 id；最终由仓储保证唯一
	if err := s.ensureFree(ctx, in); err != nil {
		return nil, err
	}

	id, err := s.ids.Next(ctx, idgen.KindUser)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:        id,
		Username:  in.Username,
		Email:     in.Email,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	logger.Info("user created", zap.Int64("user_id", id))
	return u, nil
}

func (s *userService) ensureFree(ctx context.Context, in CreateUserInput) error {
	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return apperr.Conflictf("username %q already taken", in.Username)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return apperr.Conflictf("email %q already taken", in.Email)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}

func (s *userService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	if id <= 0 {
		return nil, apperr.NotFoundf("user %d", id)
	}
	return s.users.GetByID(ctx, id)
}
