package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLimiter_AllowsUpToLimit(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLimiter(client, RateLimitConfig{RequestsPerSecond: 0.05, BurstSize: 1})
	now := time.Date(2024, 3, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return now }

	if l.Limit() != 3 {
		t.Fatalf("expected limit 3 per minute, got %d", l.Limit())
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, retry, err := l.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("fourth request should be denied")
	}
	if retry != 50*time.Second {
		t.Errorf("expected retry at window end (50s), got %v", retry)
	}
}

func TestRedisLimiter_NewWindowResets(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLimiter(client, RateLimitConfig{RequestsPerSecond: 1.0 / 60, BurstSize: 1})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	if ok, _, _ := l.Allow(ctx, "k"); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _, _ := l.Allow(ctx, "k"); ok {
		t.Fatal("second request in the same window should be denied")
	}

	now = now.Add(time.Minute)
	if ok, _, _ := l.Allow(ctx, "k"); !ok {
		t.Error("request in the next window should pass")
	}
}

func TestRedisLimiter_SetsExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, DefaultRateLimitConfig())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if _, _, err := l.Allow(context.Background(), "k"); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one counter key, got %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl != time.Minute {
		t.Errorf("expected 1m TTL, got %v", ttl)
	}
}

func TestRedisLimiter_ErrorWhenUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, DefaultRateLimitConfig())
	mr.Close()

	if _, _, err := l.Allow(context.Background(), "k"); err == nil {
		t.Error("expected an error when redis is down")
	}
}
