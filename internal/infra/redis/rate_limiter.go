package redis

import (
	"context"
	"time"
)

// RateLimiter counts hits per key in fixed windows. The window starts with
// the first hit and the key expires with it.
type RateLimiter struct {
	counter RedisClient
}

func NewRateLimiter(counter RedisClient) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// Allow reports whether the hit that was just counted is within limit.
// A non-positive limit disables limiting.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	hits, err := l.counter.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if hits == 1 {
		if err := l.counter.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}
	return hits <= int64(limit), nil
}

// PayRouteKey scopes the pay-route limit to one client address and minute.
func PayRouteKey(clientIP string, now time.Time) string {
	return "rate_limit:pay:" + clientIP + ":" + now.UTC().Format("200601021504")
}
