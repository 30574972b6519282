package chat

import (
	"context"
	"sync"
)

// threadLocks 为每个 threadId 提供互斥锁，空闲时自动回收。
type threadLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{slots: make(map[string]*lockSlot)}
}

// acquire blocks until the thread's lock is held or ctx ends.
func (l *threadLocks) acquire(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[threadID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[threadID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(threadID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.release(threadID, slot)
		})
	}, nil
}

func (l *threadLocks) release(threadID string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, threadID)
	}
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
