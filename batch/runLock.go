package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

var ErrRunLocked = errors.New("another rebuild run holds the lock")

// RunLock keeps two rebuild runs over the same term from overlapping.
type RunLock interface {
	Acquire(ctx context.Context) error
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// RedisRunLock is a RunLock held in Redis with a TTL refreshed every batch.
type RedisRunLock struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
	lock   *redislock.Lock
}

func NewRedisRunLock(client *redislock.Client, termFilter string, ttl time.Duration) *RedisRunLock {
	scope := termFilter
	if scope == "" {
		scope = "all"
	}
	return &RedisRunLock{
		client: client,
		key:    fmt.Sprintf("lock:receipt-rebuild:%s", scope),
		ttl:    ttl,
	}
}

func (l *RedisRunLock) Key() string { return l.key }

func (l *RedisRunLock) Acquire(ctx context.Context) error {
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrRunLocked
	}
	if err != nil {
		return err
	}
	l.lock = lock
	return nil
}

func (l *RedisRunLock) Refresh(ctx context.Context) error {
	if l.lock == nil {
		return redislock.ErrLockNotHeld
	}
	return l.lock.Refresh(ctx, l.ttl, nil)
}

func (l *RedisRunLock) Release(ctx context.Context) error {
	if l.lock == nil {
		return nil
	}
	err := l.lock.Release(ctx)
	l.lock = nil
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// NoopRunLock is used when no Redis is configured.
type NoopRunLock struct{}

func (NoopRunLock) Acquire(context.Context) error { return nil }
func (NoopRunLock) Refresh(context.Context) error { return nil }
func (NoopRunLock) Release(context.Context) error { return nil }
