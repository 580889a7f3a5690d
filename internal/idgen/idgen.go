// Package idgen hands out strictly increasing identifiers per entity kind.
package idgen

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Kind 标识一个独立的 id 序列
type Kind string

const (
	KindUser Kind = "user"
	KindPost Kind = "post"
)

// Allocator returns ids that are unique and strictly increasing per kind,
// starting at 1. Ids are never handed out twice.
type Allocator interface {
	Next(ctx context.Context, kind Kind) (int64, error)
}

// Atomic 进程内计数器，进程重启后从 1 开始
type Atomic struct {
	users atomic.Int64
	posts atomic.Int64
}

func NewAtomic() *Atomic { return &Atomic{} }

func (a *Atomic) Next(_ context.Context, kind Kind) (int64, error) {
	switch kind {
	case KindUser:
		return a.users.Add(1), nil
	case KindPost:
		return a.posts.Add(1), nil
	default:
		return 0, fmt.Errorf("unknown id kind %q", kind)
	}
}
