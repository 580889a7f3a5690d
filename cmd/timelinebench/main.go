package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/d60-Lab/timeline-service/config"
	"github.com/d60-Lab/timeline-service/internal/app"
	"github.com/d60-Lab/timeline-service/internal/service"
	"github.com/d60-Lab/timeline-service/internal/timeline"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			return v
		}
	}
	return def
}

// 使用 config.yaml / APP_* 选择的后端，测量发帖与翻页延迟
func main() {
	cfg := must(config.Load())
	ctx := context.Background()
	a := must(app.Build(ctx, cfg))
	defer a.Close(ctx)

	USERS := envInt("USERS", 50)
	POSTS := envInt("POSTS", 5000)  // posts to publish in total
	WORKERS := envInt("WORKERS", 8) // concurrent writers
	READS := envInt("READS", 2000)  // page reads
	PAGES := envInt("PAGES", 5)     // deepest page index read

	run := time.Now().UnixNano()
	userIDs := make([]int64, USERS)
	for i := range userIDs {
		name := fmt.Sprintf("bench%d_%d", run, i)
		u := must(a.Users.CreateUser(ctx, service.CreateUserInput{Username: name, Email: name + "@example.com"}))
		userIDs[i] = u.ID
	}

	// publish POSTS from WORKERS goroutines
	var (
		mu     sync.Mutex
		create = make([]time.Duration, 0, POSTS)
		wg     sync.WaitGroup
	)
	jobs := make(chan int)
	for w := 0; w < WORKERS; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				st := time.Now()
				_, err := a.Posts.CreatePost(ctx, service.CreatePostInput{
					UserID: userIDs[i%len(userIDs)],
					Title:  fmt.Sprintf("bench post %d", i),
				})
				if err != nil {
					panic(err)
				}
				d := time.Since(st)
				mu.Lock()
				create = append(create, d)
				mu.Unlock()
			}
		}()
	}
	st := time.Now()
	for i := 0; i < POSTS; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(st)

	// page reads: global and per-user, spread over the first PAGES pages
	global := make([]time.Duration, 0, READS)
	perUser := make([]time.Duration, 0, READS)
	for i := 0; i < READS; i++ {
		page := i % PAGES
		st := time.Now()
		_ = must(a.Posts.ListPosts(ctx, timeline.AllPosts(), page, cfg.Pagination.MaxSize))
		global = append(global, time.Since(st))

		st = time.Now()
		_ = must(a.Posts.ListPosts(ctx, timeline.ByUser(userIDs[i%len(userIDs)]), page, cfg.Pagination.MaxSize))
		perUser = append(perUser, time.Since(st))
	}

	fmt.Printf("storage=%s timeline=%s ids=%s\n", cfg.Storage.Backend, cfg.Storage.Timeline, cfg.Storage.IDs)
	fmt.Printf("USERS=%d POSTS=%d WORKERS=%d READS=%d PAGES=%d\n", USERS, POSTS, WORKERS, READS, PAGES)
	fmt.Printf("Create: %.0f posts/s avg=%v p95=%v p99=%v\n", float64(POSTS)/elapsed.Seconds(), avg(create), pct(create, 0.95), pct(create, 0.99))
	fmt.Printf("Global page read: avg=%v p95=%v p99=%v\n", avg(global), pct(global, 0.95), pct(global, 0.99))
	fmt.Printf("User page read:   avg=%v p95=%v p99=%v\n", avg(perUser), pct(perUser, 0.95), pct(perUser, 0.99))
}
