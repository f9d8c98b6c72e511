// Package ratelimit caps per-user request rates on the expensive endpoints
// with a fixed-window counter in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is the length of one counting window.
const Window = time.Minute

// Limiter counts requests per key. A nil *Limiter allows everything.
type Limiter struct {
	rdb    redis.Cmdable
	limit  int64
	prefix string
}

// New returns a Limiter allowing limit requests per Window for each key.
func New(rdb redis.Cmdable, limit int) *Limiter {
	return &Limiter{rdb: rdb, limit: int64(limit), prefix: "smartsendr:rl"}
}

// Open parses a redis:// URL and returns a client. An empty URL returns nil.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ratelimit: ping redis: %w", err)
	}
	return rdb, nil
}

// Allow records one request for scope/key and reports whether it is within
// the limit.
func (l *Limiter) Allow(ctx context.Context, scope, key string) (bool, error) {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return true, nil
	}
	k := fmt.Sprintf("%s:%s:%s", l.prefix, scope, key)

	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, Window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}
	return count <= l.limit, nil
}
