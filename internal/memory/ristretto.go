package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoStore is the in-process fallback cache. It keeps the same
// TTL semantics as the primary store but is deliberately weaker: not
// durable and not shared between processes.
type RistrettoStore struct {
	cache *ristretto.Cache
}

// NewRistrettoStore creates the fallback cache.
func NewRistrettoStore() (*RistrettoStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     64 << 20, // 64 MiB of cached blobs
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &RistrettoStore{cache: cache}, nil
}

// Get reads a cached value. Expired or evicted entries are misses.
func (s *RistrettoStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Set writes a value with a TTL. Ristretto applies writes
// asynchronously, so Wait flushes the buffers to keep reads-after-writes
// coherent for same-session turns.
func (s *RistrettoStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	s.cache.SetWithTTL(key, stored, int64(len(stored)), ttl)
	s.cache.Wait()
	return nil
}

// Delete removes a cached value.
func (s *RistrettoStore) Delete(_ context.Context, key string) error {
	s.cache.Del(key)
	return nil
}

// Close releases the cache.
func (s *RistrettoStore) Close() {
	s.cache.Close()
}
