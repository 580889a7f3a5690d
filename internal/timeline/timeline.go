// Package timeline keeps post ids ordered newest first, globally and per
// author, and serves them a page at a time.
package timeline

import (
	"context"
	"time"

	"github.com/d60-Lab/timeline-service/internal/apperr"
)

// Entry is one post's position in the timelines.
type Entry struct {
	PostID    int64
	UserID    int64
	CreatedAt time.Time
}

// before reports whether e sorts after o in newest-first order, i.e. e is older.
func (e Entry) before(o Entry) bool {
	if !e.CreatedAt.Equal(o.CreatedAt) {
		return e.CreatedAt.Before(o.CreatedAt)
	}
	return e.PostID < o.PostID
}

// Filter selects a timeline: the global one, or one author's.
type Filter struct {
	UserID int64
	all    bool
}

func AllPosts() Filter           { return Filter{all: true} }
func ByUser(userID int64) Filter { return Filter{UserID: userID} }

func (f Filter) Global() bool { return f.all }

// Page is one slice of a timeline, newest first.
type Page struct {
	IDs     []int64
	HasMore bool
	Total   int64
}

// Index is the ordered set of live post ids. Insert and Remove are
// idempotent; Page is deterministic for a fixed set of entries.
type Index interface {
	Insert(ctx context.Context, e Entry) error
	Remove(ctx context.Context, e Entry) error
	Page(ctx context.Context, f Filter, pageIndex, pageSize int) (Page, error)
	Reset(ctx context.Context) error
}

func checkPage(pageIndex, pageSize int) error {
	if pageSize <= 0 {
		return apperr.InvalidArgumentf("page size must be positive, got %d", pageSize)
	}
	if pageIndex < 0 {
		return apperr.InvalidArgumentf("page index must not be negative, got %d", pageIndex)
	}
	return nil
}

// window returns the [offset, offset+size) range clipped to total, and
// whether entries remain past it.
func window(pageIndex, pageSize int, total int64) (start, end int64, more bool) {
	size := int64(pageSize)
	if int64(pageIndex) > total/size {
		return total, total, false
	}
	start = int64(pageIndex) * size
	if start >= total {
		return total, total, false
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end, end < total
}

// Rebuild clears idx and inserts every entry.
func Rebuild(ctx context.Context, idx Index, entries []Entry) error {
	if err := idx.Reset(ctx); err != nil {
		return err
	}
	for _, e := range entries {
		if err := idx.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
