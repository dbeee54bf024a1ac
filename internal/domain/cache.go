package domain

import (
	"context"
	"time"
)

// LookupCache memoizes third-party price lookups by source and query.
// Get returns ErrNotFound on a miss.
type LookupCache interface {
	Get(ctx context.Context, source, query string, dst any) error
	Set(ctx context.Context, source, query string, v any, ttl time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
