package memory

import (
	"context"
	"log/slog"
	"time"
)

// CompositeStore reads and writes through a primary store and degrades
// to the in-process fallback when the primary errors. Fallback entries
// are non-durable and non-shared; that trade-off is accepted so a cache
// outage reduces context quality instead of failing the turn.
type CompositeStore struct {
	primary  Store
	fallback Store
}

// NewCompositeStore combines a primary store with a fallback.
func NewCompositeStore(primary, fallback Store) *CompositeStore {
	return &CompositeStore{primary: primary, fallback: fallback}
}

// Get reads from the primary, consulting the fallback only when the
// primary errors.
func (s *CompositeStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	slog.Warn("primary cache read failed, using fallback", "key", key, "error", err)
	return s.fallback.Get(ctx, key)
}

// Set writes to the primary; on failure the value lands in the fallback
// so the session survives the current conversation at least.
func (s *CompositeStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("primary cache write failed, using fallback", "key", key, "error", err)
		return s.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

// Delete removes the key from both stores.
func (s *CompositeStore) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if fbErr := s.fallback.Delete(ctx, key); fbErr != nil && err == nil {
		err = fbErr
	}
	return err
}
