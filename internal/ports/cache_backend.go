package ports

import (
	"context"
	"time"
)

// CacheBackend is a key/value store with per-entry expiry. It is never
// the source of truth: a miss or a backend failure only costs an extra
// store read. There is no delete; entries expire naturally.
type CacheBackend interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
