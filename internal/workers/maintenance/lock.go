package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// UnlockFunc releases a lock acquired by TryLock
type UnlockFunc func(ctx context.Context) error

// Locker provides a best-effort mutual exclusion across replicas
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, bool, error)
}

// NoopLocker always acquires. Used when Redis is not configured.
type NoopLocker struct{}

// TryLock always succeeds
func (NoopLocker) TryLock(context.Context, string, time.Duration) (UnlockFunc, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// releaseScript deletes the key only while it still holds our token, so a
// run that outlived its TTL cannot release a lock another replica now holds.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryLock attempts to take key for ttl without blocking
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}, true, nil
}
