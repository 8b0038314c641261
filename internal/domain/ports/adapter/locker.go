package adapter

import (
	"context"
	"time"
)

// Locker hands out short leases keyed by name. TryLock fails with
// domain.ErrLockNotAcquired while another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
