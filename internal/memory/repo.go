package memory

import (
	"context"
	"time"

	"github.com/raqibtech/converse/internal/store"
)

// RepositoryStore adapts the SQLite repository's kv_cache table to the
// Store interface so it can serve as the primary, shared session cache.
type RepositoryStore struct {
	repo store.Repository
}

// NewRepositoryStore wraps a repository as a Store.
func NewRepositoryStore(repo store.Repository) *RepositoryStore {
	return &RepositoryStore{repo: repo}
}

func (s *RepositoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.repo.GetBlob(ctx, key)
}

func (s *RepositoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.repo.PutBlob(ctx, key, value, ttl)
}

func (s *RepositoryStore) Delete(ctx context.Context, key string) error {
	return s.repo.DeleteBlob(ctx, key)
}
