package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"AttendGate/pkg/logger"
	"AttendGate/storage/redis"
)

const (
	lockPrefix = "lock"

	lockRetryInterval = 25 * time.Millisecond
)

// ErrLockTimeout 等待超时仍未拿到锁
var ErrLockTimeout = fmt.Errorf("timed out waiting for lock")

// 只删除自己持有的锁，避免过期后误删他人的锁
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SETNX 的分布式锁，多副本部署时串行化同一用户的准入
type RedisLocker struct {
	client *goredis.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLocker(client *goredis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

// TryLock 尝试一次，返回是否拿到锁
func (l *RedisLocker) TryLock(ctx context.Context, key, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, redis.Key(lockPrefix, key), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Lock 在 wait 时间内重试加锁，返回的 unlock 可重复调用
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.TryLock(waitCtx, key, token)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.unlockFunc(key, token), nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, token) })
	}
}

// release 业务 ctx 可能已取消，解锁使用独立的短超时
func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := unlockScript.Run(ctx, l.client, []string{redis.Key(lockPrefix, key)}, token).Err(); err != nil {
		logger.Logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
	}
}
