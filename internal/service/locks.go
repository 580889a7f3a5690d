package service

import "sync"

const lockStripes = 64

// stripedLock 按 id 分段加锁，同一 id 的修改串行
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(id int64) func() {
	m := &l.stripes[uint64(id)%lockStripes]
	m.Lock()
	return m.Unlock
}
