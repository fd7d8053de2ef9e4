package lock

import (
	"context"
	"fmt"
	"sync"
)

// KeyedMutex 进程内按 key 互斥，不同 key 之间互不影响
// 没有持有者和等待者的 key 会被回收
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*keyedSlot
}

type keyedSlot struct {
	ch   chan struct{}
	refs int // 持有者 + 等待者
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*keyedSlot)}
}

func (m *KeyedMutex) acquire(key string) *keyedSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots == nil {
		m.slots = make(map[string]*keyedSlot)
	}
	s, ok := m.slots[key]
	if !ok {
		s = &keyedSlot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *KeyedMutex) release(key string, s *keyedSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

func (m *KeyedMutex) unlocker(key string, s *keyedSlot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.release(key, s)
		})
	}
}

// Lock 阻塞直到拿到锁或 ctx 结束
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	s := m.acquire(key)
	select {
	case s.ch <- struct{}{}:
		return m.unlocker(key, s), nil
	case <-ctx.Done():
		m.release(key, s)
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}
}

// TryLock 不等待，拿不到直接返回 false
func (m *KeyedMutex) TryLock(key string) (func(), bool) {
	s := m.acquire(key)
	select {
	case s.ch <- struct{}{}:
		return m.unlocker(key, s), true
	default:
		m.release(key, s)
		return nil, false
	}
}

// size 当前占用的 key 数量
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
