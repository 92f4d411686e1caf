// Package memory implements the multi-tier conversation memory: a TTL
// key-value store with an in-process fallback, the authoritative session
// mirror, and the advisory buffer/summary/entity/semantic tiers used to
// disambiguate free text.
package memory

import (
	"context"
	"time"
)

// Store is a TTL key-value cache. Get returns (nil, nil) on a miss or
// an expired entry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
