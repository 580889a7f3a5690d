package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/timeline-service/internal/apperr"
	"github.com/d60-Lab/timeline-service/internal/model"
)

func openTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(tb, err)
	sqlDB, err := db.DB()
	require.NoError(tb, err)
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(tb, db.AutoMigrate(Models()...))
	return db
}

type repoPair struct {
	users UserRepository
	posts PostRepository
}

func backends(t *testing.T) map[string]repoPair {
	db := openTestDB(t)
	return map[string]repoPair{
		"memory": {users: NewMemoryUserRepository(), posts: NewMemoryPostRepository()},
		"gorm":   {users: NewUserRepository(db), posts: NewPostRepository(db)},
	}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alice := &model.User{ID: 1, Username: "alice", Email: "alice@example.com", CreatedAt: t0}
			require.NoError(t, b.users.Create(ctx, alice))

			got, err := b.users.GetByID(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Username)
			assert.True(t, t0.Equal(got.CreatedAt))

			got, err = b.users.GetByUsername(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.ID)

			got, err = b.users.GetByEmail(ctx, "alice@example.com")
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.ID)

			err = b.users.Create(ctx, &model.User{ID: 2, Username: "alice", Email: "other@example.com", CreatedAt: t0})
			assert.ErrorIs(t, err, apperr.ErrConflict)
			err = b.users.Create(ctx, &model.User{ID: 3, Username: "bob", Email: "alice@example.com", CreatedAt: t0})
			assert.ErrorIs(t, err, apperr.ErrConflict)

			// case-sensitive exact match
			require.NoError(t, b.users.Create(ctx, &model.User{ID: 4, Username: "Alice", Email: "Alice@example.com", CreatedAt: t0}))

			_, err = b.users.GetByID(ctx, 99)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
			_, err = b.users.GetByUsername(ctx, "nobody")
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestPostRepository(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p1 := &model.Post{
				ID: 1, UserID: 7, Title: "first", Description: "d",
				MediaFiles: []model.Media{{URL: "https://cdn.example.com/a.png", Type: model.MediaImage}},
				CreatedAt:  t0, UpdatedAt: t0,
			}
			p2 := &model.Post{ID: 2, UserID: 8, Title: "second", CreatedAt: t0.Add(time.Second), UpdatedAt: t0.Add(time.Second)}
			require.NoError(t, b.posts.Create(ctx, p1))
			require.NoError(t, b.posts.Create(ctx, p2))
			assert.ErrorIs(t, b.posts.Create(ctx, p1), apperr.ErrConflict)

			got, err := b.posts.GetByID(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "first", got.Title)
			require.Len(t, got.MediaFiles, 1)
			assert.Equal(t, model.MediaImage, got.MediaFiles[0].Type)

			list, err := b.posts.GetByIDs(ctx, []int64{2, 42, 1})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, int64(2), list[0].ID)
			assert.Equal(t, int64(1), list[1].ID)

			upd := got.Clone()
			upd.Title = "edited"
			upd.Description = ""
			upd.MediaFiles = nil
			upd.UpdatedAt = t0.Add(time.Minute)
			require.NoError(t, b.posts.Update(ctx, upd))

			got, err = b.posts.GetByID(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "edited", got.Title)
			assert.Empty(t, got.Description)
			assert.Empty(t, got.MediaFiles)
			assert.True(t, t0.Equal(got.CreatedAt))
			assert.True(t, t0.Add(time.Minute).Equal(got.UpdatedAt))
			assert.Equal(t, int64(7), got.UserID)

			assert.ErrorIs(t, b.posts.Update(ctx, &model.Post{ID: 99, Title: "x"}), apperr.ErrNotFound)

			keys, err := b.posts.Keys(ctx)
			require.NoError(t, err)
			require.Len(t, keys, 2)
			assert.Equal(t, PostKey{ID: 1, UserID: 7}, PostKey{ID: keys[0].ID, UserID: keys[0].UserID})
			assert.True(t, t0.Add(time.Second).Equal(keys[1].CreatedAt))

			require.NoError(t, b.posts.Delete(ctx, 1))
			assert.ErrorIs(t, b.posts.Delete(ctx, 1), apperr.ErrNotFound)
			_, err = b.posts.GetByID(ctx, 1)
			assert.ErrorIs(t, err, apperr.ErrNotFound)

			empty, err := b.posts.GetByIDs(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestMemoryPostRepositoryIsolation(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryPostRepository()
	p := &model.Post{ID: 1, Title: "t", MediaFiles: []model.Media{{URL: "https://x/y.png"}}}
	require.NoError(t, r.Create(ctx, p))

	p.MediaFiles[0].URL = "mutated"
	got, err := r.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.png", got.MediaFiles[0].URL)

	got.Title = "mutated"
	again, err := r.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "t", again.Title)
}

func TestMaxIDs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	users, posts, err := MaxIDs(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, users)
	assert.Zero(t, posts)

	require.NoError(t, NewUserRepository(db).Create(ctx, &model.User{ID: 5, Username: "u", Email: "u@example.com", CreatedAt: t0}))
	require.NoError(t, NewPostRepository(db).Create(ctx, &model.Post{ID: 12, UserID: 5, Title: "t", CreatedAt: t0, UpdatedAt: t0}))
	users, posts, err = MaxIDs(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(5), users)
	assert.Equal(t, int64(12), posts)
}
