package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared by every instance behind one redis
type RedisLimiter struct {
	client *redis.Client
	prefix string
	rate   int64
	window time.Duration
}

// NewRedisLimiter creates a limiter; prefix separates independent limits
func NewRedisLimiter(client *redis.Client, prefix string, rate int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		rate:   int64(rate),
		window: window,
	}
}

func (l *RedisLimiter) key(key string) string {
	return "rl:" + l.prefix + ":" + key
}

// Allow implements Limiter. The window key is created with its expiry and
// counted in one MULTI block, so a counter never outlives its window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.key(key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, l.window)
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}

	// -1: counter left without expiry by an older deployment
	if ttl.Val() == -1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("failed to set window: %w", err)
		}
	}

	return incr.Val() <= l.rate, nil
}
