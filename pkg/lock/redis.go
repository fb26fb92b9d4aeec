package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds this locker's
// token, so a lock that expired and was re-acquired elsewhere is never
// released by the stale holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker provides cross-instance locking with SET NX and a TTL. The
// TTL bounds how long a crashed holder can block other instances.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets how long a lock survives without release. Non-positive
// values are ignored.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets the polling interval while waiting for a held
// lock. Non-positive values are ignored.
func WithRetryInterval(interval time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if interval > 0 {
			l.retry = interval
		}
	}
}

// WithKeyPrefix namespaces all lock keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker creates a locker over the given client. Defaults: 30s TTL,
// 50ms retry interval, "lock:" key prefix.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		ttl:    30 * time.Second,
		retry:  50 * time.Millisecond,
		prefix: "lock:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until the lock is taken or ctx is done. The returned
// release function is idempotent and only deletes the key while this caller
// still owns it.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	name := l.prefix + key

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %q: %w", key, err)
		}
		if ok {
			return l.releaseFunc(name, token), nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock: acquire %q: %w", key, ctx.Err())
		}
	}
}

// TryAcquire attempts to take the lock without waiting. It reports false
// when another holder owns the key.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	name := l.prefix + key

	ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock: try acquire %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.releaseFunc(name, token), true, nil
}

func (l *RedisLocker) releaseFunc(name, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even after the acquiring context is
			// cancelled. Failures are left to the TTL.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{name}, token).Err()
		})
	}
}
