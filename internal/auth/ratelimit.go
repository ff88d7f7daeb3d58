package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginLimitKeyPrefix = "makazi:login:"

// LoginLimiter throttles failed sign-in attempts per key (ip + username)
type LoginLimiter interface {
	// Allow consumes one attempt and reports whether it is within the limit
	Allow(ctx context.Context, key string) (bool, error)
	// Reset clears the counter after a successful sign-in
	Reset(ctx context.Context, key string) error
}

// MemoryLoginLimiter is a fixed-window limiter kept in process memory
type MemoryLoginLimiter struct {
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewMemoryLoginLimiter allows maxAttempts per window and key
func NewMemoryLoginLimiter(maxAttempts int, window time.Duration) *MemoryLoginLimiter {
	return &MemoryLoginLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
	}
}

// Allow implements LoginLimiter
func (l *MemoryLoginLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.lastRefill) >= l.window {
		b = &bucket{tokens: l.maxAttempts, lastRefill: now}
		l.buckets[key] = b
	}

	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// sweep drops buckets whose window has passed, at most once per window.
// Memory stays bounded by the keys seen in the last two windows.
func (l *MemoryLoginLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastRefill) >= l.window {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Reset implements LoginLimiter
func (l *MemoryLoginLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}

// RedisLoginLimiter shares attempt counters between instances
type RedisLoginLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewRedisLoginLimiter allows maxAttempts per window and key
func NewRedisLoginLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLoginLimiter {
	return &RedisLoginLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow implements LoginLimiter
func (l *RedisLoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := loginLimitKeyPrefix + key
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.maxAttempts), nil
}

// Reset implements LoginLimiter
func (l *RedisLoginLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, loginLimitKeyPrefix+key).Err()
}
