package timeline

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex 每条时间线一个按 (createdAt, id) 升序的切片，读取时倒序
type MemoryIndex struct {
	mu     sync.RWMutex
	global []Entry
	users  map[int64][]Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{users: make(map[int64][]Entry)}
}

func (m *MemoryIndex) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = insertSorted(m.global, e)
	m.users[e.UserID] = insertSorted(m.users[e.UserID], e)
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = removeSorted(m.global, e)
	if list := removeSorted(m.users[e.UserID], e); len(list) > 0 {
		m.users[e.UserID] = list
	} else {
		delete(m.users, e.UserID)
	}
	return nil
}

func (m *MemoryIndex) Page(_ context.Context, f Filter, pageIndex, pageSize int) (Page, error) {
	if err := checkPage(pageIndex, pageSize); err != nil {
		return Page{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.global
	if !f.Global() {
		list = m.users[f.UserID]
	}
	total := int64(len(list))
	start, end, more := window(pageIndex, pageSize, total)
	ids := make([]int64, 0, end-start)
	for i := start; i < end; i++ {
		ids = append(ids, list[total-1-i].PostID)
	}
	return Page{IDs: ids, HasMore: more, Total: total}, nil
}

func (m *MemoryIndex) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = nil
	m.users = make(map[int64][]Entry)
	return nil
}

func search(list []Entry, e Entry) int {
	return sort.Search(len(list), func(i int) bool { return !list[i].before(e) })
}

func insertSorted(list []Entry, e Entry) []Entry {
	i := search(list, e)
	if i < len(list) && list[i].PostID == e.PostID {
		return list
	}
	list = append(list, Entry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	return list
}

func removeSorted(list []Entry, e Entry) []Entry {
	i := search(list, e)
	if i >= len(list) || list[i].PostID != e.PostID {
		return list
	}
	return append(list[:i], list[i+1:]...)
}
