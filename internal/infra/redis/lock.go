package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*RedisLocker)(nil)

// RedisLocker hands out SET NX leases keyed by a random token. Only the
// holder of the token can release a lease; an abandoned one lapses after ttl.
type RedisLocker struct {
	rdb      *redis.Client
	attempts int
	wait     time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{rdb: c.rdb, attempts: 5, wait: 50 * time.Millisecond}
}

// TryLock polls for the lease a few times before giving up with
// domain.ErrLockNotAcquired. Backend errors on the last attempt are returned
// as-is.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var err error
	for attempt := 1; attempt <= l.attempts; attempt++ {
		var acquired bool
		acquired, err = l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err == nil && acquired {
			return token, nil
		}
		if attempt == l.attempts {
			break
		}
		timer := time.NewTimer(l.wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return "", err
	}
	return "", domain.ErrLockNotAcquired
}

// compare-and-delete so a lapsed lease re-acquired by someone else survives
var releaseLease = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder and holder == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	return releaseLease.Run(ctx, l.rdb, []string{key}, token).Err()
}
