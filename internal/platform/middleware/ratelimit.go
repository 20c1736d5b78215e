package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
)

const MsgTooManyRequests = "Too many requests from this IP, please try again later."

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 5,
		BurstSize:         10,
	}
}

// Limiter decides whether a request identified by key may proceed. When it
// may not, retryAfter is a hint for the client.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory. Idle keys
// are evicted lazily once they have been unused for idleTTL.
type MemoryLimiter struct {
	cfg      RateLimitConfig
	idleTTL  time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
	now      func() time.Time
}

func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	return &MemoryLimiter{
		cfg:      cfg,
		idleTTL:  10 * time.Minute,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	v, ok := m.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(m.cfg.RequestsPerSecond), m.cfg.BurstSize)}
		m.visitors[key] = v
	}
	v.lastSeen = now
	m.gcLocked(now)
	m.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// Len reports how many keys are currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visitors)
}

func (m *MemoryLimiter) gcLocked(now time.Time) {
	if now.Sub(m.lastGC) < m.idleTTL {
		return
	}
	m.lastGC = now
	for k, v := range m.visitors {
		if now.Sub(v.lastSeen) > m.idleTTL {
			delete(m.visitors, k)
		}
	}
}

// RateLimit rejects requests that exceed the limiter's budget for the client
// IP. Limiter failures are logged and the request is let through.
func RateLimit(l Limiter, cfg RateLimitConfig, logger zerolog.Logger) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			allowed, retryAfter, err := l.Allow(c.Request().Context(), key)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				h.Set("X-RateLimit-Remaining", "0")
				return apperror.New(apperror.KindTooManyRequests, MsgTooManyRequests)
			}
			return next(c)
		}
	}
}
