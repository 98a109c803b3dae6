package adapter

import (
	"context"
	"time"
)

// Locker is a best-effort distributed mutex. TryLock fails with
// domain.ErrLockBusy when the key is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
