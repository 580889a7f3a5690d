package idgen

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis 使用 INCR，跨进程与重启都保持单调
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "tl"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(kind Kind) string { return fmt.Sprintf("%s:seq:%s", r.prefix, kind) }

func (r *Redis) Next(ctx context.Context, kind Kind) (int64, error) {
	if kind != KindUser && kind != KindPost {
		return 0, fmt.Errorf("unknown id kind %q", kind)
	}
	id, err := r.rdb.Incr(ctx, r.key(kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", r.key(kind), err)
	}
	return id, nil
}

// Seed 将序列推进到至少 v（用于从已有数据恢复）
func (r *Redis) Seed(ctx context.Context, kind Kind, v int64) error {
	// SET 仅在新值更大时生效
	const script = `local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur < tonumber(ARGV[1]) then redis.call('SET', KEYS[1], ARGV[1]) end
return 0`
	return r.rdb.Eval(ctx, script, []string{r.key(kind)}, v).Err()
}
