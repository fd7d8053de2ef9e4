package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired 等待超时或上下文取消时未拿到锁
var ErrNotAcquired = errors.New("lock not acquired")

// Locker 按 key 互斥，返回的 unlock 必须调用且只调用一次
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
