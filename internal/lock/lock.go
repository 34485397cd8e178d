// Package lock предоставляет распределённую блокировку запусков фоновых задач.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

// ErrNotAcquired возвращается, если блокировку держит другой процесс.
var ErrNotAcquired = errors.New("lock is held by another process")

// Locker выполняет функцию под именованной блокировкой.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// RedisLocker реализует Locker поверх redsync.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedisLocker создаёт блокировку на клиенте Redis. expiry ограничивает время удержания
// блокировки упавшим процессом.
func NewRedisLocker(rdb *redis.Client, expiry time.Duration) *RedisLocker {
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		expiry: expiry,
	}
}

// WithLock выполняет fn, если удалось захватить блокировку name. Захват не ждёт освобождения.
func (l *RedisLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex("lock:"+name,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return ErrNotAcquired
		}
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	defer func() {
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}()

	return fn(ctx)
}

// Noop выполняет функцию без блокировки. Используется, когда Redis не настроен.
type Noop struct{}

// WithLock сразу вызывает fn.
func (Noop) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
