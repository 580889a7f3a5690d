// Package app wires the configured backends into services and the router.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/timeline-service/config"
	"github.com/d60-Lab/timeline-service/internal/api"
	"github.com/d60-Lab/timeline-service/internal/api/handler"
	"github.com/d60-Lab/timeline-service/internal/idgen"
	"github.com/d60-Lab/timeline-service/internal/repository"
	"github.com/d60-Lab/timeline-service/internal/service"
	"github.com/d60-Lab/timeline-service/internal/timeline"
	"github.com/d60-Lab/timeline-service/pkg/database"
	"github.com/d60-Lab/timeline-service/pkg/logger"
	"github.com/d60-Lab/timeline-service/pkg/telemetry"
)

// App 持有已装配的组件及其释放函数
type App struct {
	Router *gin.Engine
	Users  service.UserService
	Posts  service.PostService

	closers []func(context.Context) error
}

func (a *App) onClose(fn func(context.Context) error) { a.closers = append(a.closers, fn) }

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build 按配置选择存储、时间线与 id 分配后端
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.onClose(func(ctx context.Context) error { return shutdownTracer(ctx) })

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			AttachStacktrace: true,
		}); err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		a.onClose(func(context.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		})
	}

	var db *gorm.DB
	if cfg.Storage.Backend == "database" {
		if db, err = openDB(cfg); err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return database.Close(db) })
	}

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		a.onClose(func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	ids, err := buildAllocator(ctx, cfg, db, rdb)
	if err != nil {
		return nil, err
	}

	var (
		users repository.UserRepository
		posts repository.PostRepository
	)
	if db != nil {
		users, posts = repository.NewUserRepository(db), repository.NewPostRepository(db)
	} else {
		users, posts = repository.NewMemoryUserRepository(), repository.NewMemoryPostRepository()
	}

	var index timeline.Index
	switch cfg.Storage.Timeline {
	case "redis":
		index = timeline.NewRedisIndex(rdb, cfg.Redis.KeyPrefix)
	case "database":
		index = timeline.NewDBIndex(db)
	default:
		index = timeline.NewMemoryIndex()
	}

	opts := []service.PostOption{service.WithMaxPageSize(cfg.Pagination.MaxSize)}
	if cfg.Nats.URL != "" {
		nc, err := nats.Connect(cfg.Nats.URL, nats.Name(cfg.Tracing.ServiceName))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.onClose(func(context.Context) error { return nc.Drain() })

		dispatcher := service.NewEventDispatcher(service.NewNatsPublisher(nc, cfg.Nats.SubjectPrefix), cfg.Nats.QueueSize)
		a.onClose(dispatcher.Start(cfg.Nats.Workers))
		opts = append(opts, service.WithEvents(dispatcher))
	}

	a.Users = service.NewUserService(users, ids)
	a.Posts = service.NewPostService(posts, users, index, ids, opts...)

	// memory/redis 索引可能与存储不一致（重启或共享 redis），启动时重建
	if cfg.Storage.Timeline != "database" {
		if err := a.Posts.RebuildTimeline(ctx); err != nil {
			return nil, fmt.Errorf("rebuild timeline: %w", err)
		}
	}

	h := handler.NewHandler(a.Users, a.Posts, handler.WithDefaultPageSize(cfg.Pagination.DefaultSize))
	a.Router = api.NewRouter(cfg, h)

	logger.Info("app built",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("timeline", cfg.Storage.Timeline),
		zap.String("ids", cfg.Storage.IDs))
	return a, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(repository.Models()...); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func buildAllocator(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (idgen.Allocator, error) {
	switch cfg.Storage.IDs {
	case "redis":
		alloc := idgen.NewRedis(rdb, cfg.Redis.KeyPrefix)
		if db != nil {
			// 计数器丢失时（如 redis 被清空）从已持久化的最大 id 继续
			maxUser, maxPost, err := repository.MaxIDs(ctx, db)
			if err != nil {
				return nil, err
			}
			if err := alloc.Seed(ctx, idgen.KindUser, maxUser); err != nil {
				return nil, err
			}
			if err := alloc.Seed(ctx, idgen.KindPost, maxPost); err != nil {
				return nil, err
			}
		}
		return alloc, nil
	case "database":
		alloc := idgen.NewDB(db)
		if err := alloc.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate id sequences: %w", err)
		}
		return alloc, nil
	default:
		return idgen.NewAtomic(), nil
	}
}
