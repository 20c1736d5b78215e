package middleware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window counter shared by every replica that points
// at the same Redis. Each key gets RequestsPerSecond*window hits per window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	window time.Duration
	limit  int64
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, cfg RateLimitConfig) *RedisLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	window := time.Minute
	limit := int64(math.Round(cfg.RequestsPerSecond * window.Seconds()))
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{
		client: client,
		prefix: "aimedicare:ratelimit:",
		window: window,
		limit:  limit,
		now:    time.Now,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := r.now()
	bucket := now.Truncate(r.window)
	redisKey := fmt.Sprintf("%s%s:%d", r.prefix, key, bucket.Unix())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit counter: %w", err)
	}

	if incr.Val() > r.limit {
		return false, bucket.Add(r.window).Sub(now), nil
	}
	return true, 0, nil
}

// Limit is the number of requests allowed per window.
func (r *RedisLimiter) Limit() int64 { return r.limit }
