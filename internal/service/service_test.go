package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/timeline-service/internal/apperr"
	"github.com/d60-Lab/timeline-service/internal/idgen"
	"github.com/d60-Lab/timeline-service/internal/model"
	"github.com/d60-Lab/timeline-service/internal/repository"
	"github.com/d60-Lab/timeline-service/internal/timeline"
)

type env struct {
	users    UserService
	posts    PostService
	userRepo *repository.MemoryUserRepository
	postRepo *repository.MemoryPostRepository
	index    timeline.Index
	ids      *idgen.Atomic
}

func newEnv(t *testing.T, opts ...PostOption) *env {
	t.Helper()
	e := &env{
		userRepo: repository.NewMemoryUserRepository(),
		postRepo: repository.NewMemoryPostRepository(),
		index:    timeline.NewMemoryIndex(),
		ids:      idgen.NewAtomic(),
	}
	e.users = NewUserService(e.userRepo, e.ids)
	e.posts = NewPostService(e.postRepo, e.userRepo, e.index, e.ids, opts...)
	return e
}

func (e *env) mustUser(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), CreateUserInput{Username: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return u
}

func (e *env) mustPost(t *testing.T, userID int64, title string) *model.Post {
	t.Helper()
	p, err := e.posts.CreatePost(context.Background(), CreatePostInput{UserID: userID, Title: title})
	require.NoError(t, err)
	return p
}

func ids(posts []*model.Post) []int64 {
	out := make([]int64, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func strp(s string) *string { return &s }
func i64p(v int64) *int64   { return &v }

func TestCreateUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u1 := e.mustUser(t, "alice")
	u2 := e.mustUser(t, "bob")
	assert.Equal(t, int64(1), u1.ID)
	assert.Equal(t, int64(2), u2.ID)
	assert.False(t, u1.CreatedAt.IsZero())

	_, err := e.users.CreateUser(ctx, CreateUserInput{Username: "alice", Email: "x@example.com"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = e.users.CreateUser(ctx, CreateUserInput{Username: "carol", Email: "bob@example.com"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = e.users.CreateUser(ctx, CreateUserInput{Username: "", Email: "d@example.com"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = e.users.CreateUser(ctx, CreateUserInput{Username: "dave", Email: "not-an-email"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	got, err := e.users.GetUser(ctx, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)
	_, err = e.users.GetUser(ctx, 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.users.GetUser(ctx, 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentCreateUserSameName(t *testing.T) {
	e := newEnv(t)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.users.CreateUser(context.Background(), CreateUserInput{Username: "same", Email: "same@example.com"})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

// Two users, five posts: creation order drives the timeline, update keeps
// position, delete removes the post everywhere and ids are not reused.
func TestTimelineScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u1 := e.mustUser(t, "user1")
	u2 := e.mustUser(t, "user2")
	p1 := e.mustPost(t, u1.ID, "User 1 Post 1")
	p2 := e.mustPost(t, u1.ID, "User 1 Post 2")
	p3 := e.mustPost(t, u1.ID, "User 1 Post 3")
	p4 := e.mustPost(t, u2.ID, "User 2 Post 1")
	p5 := e.mustPost(t, u2.ID, "User 2 Post 2")

	all, err := e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{p5.ID, p4.ID, p3.ID, p2.ID, p1.ID}, ids(all.Posts))
	assert.False(t, all.HasMore)
	assert.Equal(t, int64(5), all.Total)

	mine, err := e.posts.ListPosts(ctx, timeline.ByUser(u1.ID), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{p3.ID, p2.ID, p1.ID}, ids(mine.Posts))

	media := []model.Media{{URL: "https://example.com/updated-image.jpg", Type: model.MediaImage}}
	updated, err := e.posts.UpdatePost(ctx, p4.ID, UpdatePostInput{
		UserID:      i64p(u2.ID),
		Title:       strp("User 2 Post 1 - UPDATED"),
		Description: strp("This post has been updated!"),
		MediaFiles:  &media,
	})
	require.NoError(t, err)
	assert.Equal(t, "User 2 Post 1 - UPDATED", updated.Title)
	assert.Equal(t, p4.CreatedAt, updated.CreatedAt)

	all, err = e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{p5.ID, p4.ID, p3.ID, p2.ID, p1.ID}, ids(all.Posts))
	assert.Equal(t, "User 2 Post 1 - UPDATED", all.Posts[1].Title)

	require.NoError(t, e.posts.DeletePost(ctx, p4.ID, nil))
	all, err = e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{p5.ID, p3.ID, p2.ID, p1.ID}, ids(all.Posts))

	_, err = e.posts.GetPost(ctx, p4.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, e.posts.DeletePost(ctx, p4.ID, nil), apperr.ErrNotFound)

	p6 := e.mustPost(t, u2.ID, "after delete")
	assert.Greater(t, p6.ID, p5.ID)
}

func TestCreatePostValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.mustUser(t, "alice")

	_, err := e.posts.CreatePost(ctx, CreatePostInput{UserID: 42, Title: "t"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	cases := map[string]CreatePostInput{
		"empty title":    {UserID: u.ID},
		"blank title":    {UserID: u.ID, Title: "   "},
		"relative url":   {UserID: u.ID, Title: "t", MediaFiles: []model.Media{{URL: "img.png"}}},
		"missing url":    {UserID: u.ID, Title: "t", MediaFiles: []model.Media{{Type: model.MediaImage}}},
		"bad media type": {UserID: u.ID, Title: "t", MediaFiles: []model.Media{{URL: "https://x/y.pdf", Type: "pdf"}}},
		"long desc":      {UserID: u.ID, Title: "t", Description: string(make([]byte, 2001))},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.posts.CreatePost(ctx, in)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		})
	}

	// rejected requests allocate nothing visible
	page, err := e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	p, err := e.posts.CreatePost(ctx, CreatePostInput{
		UserID:     u.ID,
		Title:      "with media",
		MediaFiles: []model.Media{{URL: "https://cdn.example.com/v.mp4", Type: model.MediaVideo}, {URL: "https://cdn.example.com/raw"}},
	})
	require.NoError(t, err)
	assert.Len(t, p.MediaFiles, 2)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestUpdatePost(t *testing.T) {
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := newEnv(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	u := e.mustUser(t, "alice")
	other := e.mustUser(t, "bob")

	media := []model.Media{{URL: "https://x/a.png", Type: model.MediaImage}}
	p, err := e.posts.CreatePost(ctx, CreatePostInput{UserID: u.ID, Title: "orig", Description: "desc", MediaFiles: media})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	got, err := e.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: strp("patched")})
	require.NoError(t, err)
	assert.Equal(t, "patched", got.Title)
	assert.Equal(t, "desc", got.Description)
	assert.Equal(t, media, got.MediaFiles)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
	assert.Equal(t, clock, got.UpdatedAt)

	empty := []model.Media{}
	got, err = e.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Description: strp(""), MediaFiles: &empty})
	require.NoError(t, err)
	assert.Empty(t, got.Description)
	assert.Empty(t, got.MediaFiles)

	_, err = e.posts.UpdatePost(ctx, p.ID, UpdatePostInput{UserID: i64p(other.ID), Title: strp("hijack")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = e.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: strp("")})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = e.posts.UpdatePost(ctx, 999, UpdatePostInput{Title: strp("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	stored, err := e.posts.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "patched", stored.Title)
}

func TestDeletePostOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.mustUser(t, "alice")
	other := e.mustUser(t, "bob")
	p := e.mustPost(t, u.ID, "mine")

	assert.ErrorIs(t, e.posts.DeletePost(ctx, p.ID, i64p(other.ID)), apperr.ErrForbidden)
	_, err := e.posts.GetPost(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, e.posts.DeletePost(ctx, p.ID, i64p(u.ID)))
	page, err := e.posts.ListPosts(ctx, timeline.ByUser(u.ID), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
}

func TestListPostsPaging(t *testing.T) {
	e := newEnv(t, WithMaxPageSize(5))
	ctx := context.Background()
	u := e.mustUser(t, "alice")
	var want []int64
	for i := 0; i < 12; i++ {
		p := e.mustPost(t, u.ID, "p")
		want = append([]int64{p.ID}, want...)
	}

	_, err := e.posts.ListPosts(ctx, timeline.AllPosts(), -1, 5)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	clamped, err := e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, clamped.Size)
	assert.Len(t, clamped.Posts, 5)
	assert.Equal(t, int64(3), clamped.TotalPages())

	var got []int64
	for page := 0; ; page++ {
		res, err := e.posts.ListPosts(ctx, timeline.AllPosts(), page, 5)
		require.NoError(t, err)
		got = append(got, ids(res.Posts)...)
		if !res.HasMore {
			assert.Equal(t, 2, page)
			break
		}
	}
	assert.Equal(t, want, got)

	past, err := e.posts.ListPosts(ctx, timeline.AllPosts(), 10, 5)
	require.NoError(t, err)
	assert.Empty(t, past.Posts)
	assert.False(t, past.HasMore)
}

func TestFrozenClockStillOrdersNewestFirst(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newEnv(t, WithClock(func() time.Time { return fixed }))
	u := e.mustUser(t, "alice")

	a := e.mustPost(t, u.ID, "a")
	b := e.mustPost(t, u.ID, "b")
	c := e.mustPost(t, u.ID, "c")
	assert.True(t, b.CreatedAt.After(a.CreatedAt))
	assert.True(t, c.CreatedAt.After(b.CreatedAt))

	page, err := e.posts.ListPosts(context.Background(), timeline.AllPosts(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, ids(page.Posts))
}

func TestConcurrentCreateAndDelete(t *testing.T) {
	e := newEnv(t, WithMaxPageSize(1000))
	ctx := context.Background()
	u := e.mustUser(t, "alice")

	const workers, perWorker = 8, 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*model.Post
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				p, err := e.posts.CreatePost(ctx, CreatePostInput{UserID: u.ID, Title: "c"})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				created = append(created, p)
				mu.Unlock()
				// readers never see an inconsistent page
				_, err = e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 20)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.Len(t, created, workers*perWorker)

	seen := make(map[int64]bool)
	for _, p := range created {
		assert.False(t, seen[p.ID])
		seen[p.ID] = true
	}

	// delete every other post concurrently, each twice
	for i, p := range created {
		if i%2 != 0 {
			continue
		}
		for k := 0; k < 2; k++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				err := e.posts.DeletePost(ctx, id, nil)
				if err != nil {
					assert.ErrorIs(t, err, apperr.ErrNotFound)
				}
			}(p.ID)
		}
	}
	wg.Wait()

	page, err := e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 1000)
	require.NoError(t, err)
	assert.Len(t, page.Posts, workers*perWorker/2)
	assert.Equal(t, int64(workers*perWorker/2), page.Total)
	for i := 1; i < len(page.Posts); i++ {
		assert.True(t, page.Posts[i-1].CreatedAt.After(page.Posts[i].CreatedAt))
	}
}

type mockIndex struct {
	mock.Mock
	timeline.Index
}

func (m *mockIndex) Insert(ctx context.Context, e timeline.Entry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockIndex) Remove(ctx context.Context, e timeline.Entry) error {
	return m.Called(ctx, e).Error(0)
}

func TestIndexFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	userRepo := repository.NewMemoryUserRepository()
	postRepo := repository.NewMemoryPostRepository()
	ids := idgen.NewAtomic()
	idx := &mockIndex{}
	svc := NewPostService(postRepo, userRepo, idx, ids)
	require.NoError(t, userRepo.Create(ctx, &model.User{ID: 1, Username: "a", Email: "a@example.com"}))

	boom := errors.New("redis down")
	idx.On("Insert", mock.Anything, mock.Anything).Return(boom).Once()
	_, err := svc.CreatePost(ctx, CreatePostInput{UserID: 1, Title: "t"})
	require.ErrorIs(t, err, boom)
	_, err = postRepo.GetByID(ctx, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	idx.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()
	p, err := svc.CreatePost(ctx, CreatePostInput{UserID: 1, Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ID)

	idx.On("Remove", mock.Anything, mock.MatchedBy(func(e timeline.Entry) bool { return e.PostID == p.ID })).Return(boom).Once()
	require.ErrorIs(t, svc.DeletePost(ctx, p.ID, nil), boom)
	restored, err := postRepo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, restored.CreatedAt)

	idx.AssertExpectations(t)
}

func TestRebuildTimeline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.mustUser(t, "alice")
	a := e.mustPost(t, u.ID, "a")
	b := e.mustPost(t, u.ID, "b")

	// a fresh index over the same store, as after a restart
	fresh := timeline.NewMemoryIndex()
	svc := NewPostService(e.postRepo, e.userRepo, fresh, e.ids)
	empty, err := svc.ListPosts(ctx, timeline.AllPosts(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Posts)

	require.NoError(t, svc.RebuildTimeline(ctx))
	page, err := svc.ListPosts(ctx, timeline.AllPosts(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, a.ID}, ids(page.Posts))

	c, err := svc.CreatePost(ctx, CreatePostInput{UserID: u.ID, Title: "c"})
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.After(b.CreatedAt))
}

func TestConcurrentUpdatesSamePost(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.mustUser(t, "alice")
	p := e.mustPost(t, u.ID, "start")

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title, desc := fmt.Sprintf("t%d", i), fmt.Sprintf("d%d", i)
			media := []model.Media{{URL: fmt.Sprintf("https://example.com/%d.png", i), Type: model.MediaImage}}
			_, err := e.posts.UpdatePost(ctx, p.ID, UpdatePostInput{UserID: &u.ID, Title: &title, Description: &desc, MediaFiles: &media})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := e.posts.GetPost(ctx, p.ID)
	require.NoError(t, err)
	var n int
	_, err = fmt.Sscanf(got.Title, "t%d", &n)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("d%d", n), got.Description)
	require.Len(t, got.MediaFiles, 1)
	assert.Equal(t, fmt.Sprintf("https://example.com/%d.png", n), got.MediaFiles[0].URL)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
}

func TestConcurrentUpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.mustUser(t, "alice")
	keep := e.mustPost(t, u.ID, "keep")
	p := e.mustPost(t, u.ID, "doomed")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		deleted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				err := e.posts.DeletePost(ctx, p.ID, nil)
				if err == nil {
					mu.Lock()
					deleted++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, apperr.ErrNotFound)
				return
			}
			title := fmt.Sprintf("t%d", i)
			_, err := e.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: &title})
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrNotFound)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, deleted)
	_, err := e.posts.GetPost(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	page, err := e.posts.ListPosts(ctx, timeline.AllPosts(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{keep.ID}, ids(page.Posts))
}
