package timeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisIndex stores each timeline as a sorted set scored by creation time in
// microseconds. Members are zero-padded ids, so equal scores fall back to
// lexicographic order, which is id order.
type RedisIndex struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisIndex(rdb redis.UniversalClient, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = "tl"
	}
	return &RedisIndex{rdb: rdb, prefix: prefix}
}

func (r *RedisIndex) globalKey() string { return r.prefix + ":timeline:global" }

func (r *RedisIndex) userKey(userID int64) string {
	return fmt.Sprintf("%s:timeline:user:%d", r.prefix, userID)
}

func (r *RedisIndex) key(f Filter) string {
	if f.Global() {
		return r.globalKey()
	}
	return r.userKey(f.UserID)
}

func member(postID int64) string { return fmt.Sprintf("%020d", postID) }

func (r *RedisIndex) Insert(ctx context.Context, e Entry) error {
	z := redis.Z{Score: float64(e.CreatedAt.UnixMicro()), Member: member(e.PostID)}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.globalKey(), z)
		pipe.ZAdd(ctx, r.userKey(e.UserID), z)
		return nil
	})
	if err != nil {
		return fmt.Errorf("timeline insert %d: %w", e.PostID, err)
	}
	return nil
}

func (r *RedisIndex) Remove(ctx context.Context, e Entry) error {
	m := member(e.PostID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.globalKey(), m)
		pipe.ZRem(ctx, r.userKey(e.UserID), m)
		return nil
	})
	if err != nil {
		return fmt.Errorf("timeline remove %d: %w", e.PostID, err)
	}
	return nil
}

func (r *RedisIndex) Page(ctx context.Context, f Filter, pageIndex, pageSize int) (Page, error) {
	if err := checkPage(pageIndex, pageSize); err != nil {
		return Page{}, err
	}
	key := r.key(f)
	total, err := r.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return Page{}, fmt.Errorf("zcard %s: %w", key, err)
	}
	start, end, more := window(pageIndex, pageSize, total)
	if start >= end {
		return Page{IDs: []int64{}, Total: total}, nil
	}

	// 多取一个判断是否还有下一页，ZCARD 之后可能有并发写入
	members, err := r.rdb.ZRevRange(ctx, key, start, end).Result()
	if err != nil {
		return Page{}, fmt.Errorf("zrevrange %s: %w", key, err)
	}
	size := int(end - start)
	if len(members) > size {
		more = true
		members = members[:size]
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("bad timeline member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return Page{IDs: ids, HasMore: more, Total: total}, nil
}

func (r *RedisIndex) Reset(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+":timeline:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}
