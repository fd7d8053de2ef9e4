package lock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "user:1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				old := atomic.LoadInt32(&maxInside)
				if n <= old || atomic.CompareAndSwapInt32(&maxInside, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestKeyedMutex_DifferentKeysIndependent(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "user:1")
	if err != nil {
		t.Fatalf("Lock(a) error = %v", err)
	}
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := m.Lock(ctx, "user:2")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("不同 key 不应互相阻塞")
	}
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	m := NewKeyedMutex()

	unlock, _ := m.Lock(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Lock(ctx, "k")
	if !errors.Is(err, ErrNotAcquired) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want ErrNotAcquired wrapping DeadlineExceeded", err)
	}
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	m := NewKeyedMutex()

	unlock, ok := m.TryLock("k")
	if !ok {
		t.Fatal("TryLock() on free key failed")
	}
	if _, ok := m.TryLock("k"); ok {
		t.Fatal("TryLock() on held key succeeded")
	}
	unlock()
	unlock()

	unlock2, ok := m.TryLock("k")
	if !ok {
		t.Fatal("TryLock() after unlock failed")
	}
	unlock2()
}

func TestKeyedMutex_EvictsIdleKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		unlock, err := m.Lock(ctx, "user:"+strconv.Itoa(i))
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		unlock()
	}
	if n := m.size(); n != 0 {
		t.Errorf("空闲 key 未回收, size = %d", n)
	}

	// 有等待者时不回收，锁仍然互斥
	unlock, _ := m.Lock(ctx, "k")
	acquired := make(chan func(), 1)
	go func() {
		u, err := m.Lock(ctx, "k")
		if err == nil {
			acquired <- u
		}
	}()
	time.Sleep(20 * time.Millisecond)
	if _, ok := m.TryLock("k"); ok {
		t.Fatal("TryLock() on held key succeeded")
	}
	unlock()

	select {
	case u := <-acquired:
		if n := m.size(); n != 1 {
			t.Errorf("持有中 size = %d, want 1", n)
		}
		u()
	case <-time.After(time.Second):
		t.Fatal("等待者未拿到锁")
	}
	if n := m.size(); n != 0 {
		t.Errorf("释放后 size = %d, want 0", n)
	}

	// 超时放弃的等待者也要释放引用
	hold, _ := m.TryLock("t")
	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(tctx, "t"); err == nil {
		t.Fatal("expected timeout")
	}
	hold()
	if n := m.size(); n != 0 {
		t.Errorf("超时后 size = %d, want 0", n)
	}
}

func TestRedisLocker_NotConfigured(t *testing.T) {
	var l *RedisLocker
	if _, _, err := l.TryLock(context.Background(), "k"); err == nil {
		t.Error("expected error for nil locker")
	}
	if err := l.Release(context.Background(), "k", "t"); err != nil {
		t.Errorf("Release() on nil locker = %v, want nil", err)
	}

	l = NewRedisLocker(nil, "ledger:", 0, nil)
	if l.ttl != 5*time.Minute {
		t.Errorf("default ttl = %v", l.ttl)
	}
	if _, err := l.Lock(context.Background(), "k"); err == nil {
		t.Error("expected error without redis client")
	}
}
