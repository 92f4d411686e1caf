package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raqibtech/converse/internal/store"
)

type countingRepo struct {
	store.Repository
	cleanups chan struct{}
}

func (c *countingRepo) CleanupExpiredBlobs(ctx context.Context) (int64, error) {
	n, err := c.Repository.CleanupExpiredBlobs(ctx)
	select {
	case c.cleanups <- struct{}{}:
	default:
	}
	return n, err
}

func TestSweeperRemovesExpiredEntries(t *testing.T) {
	repo := &countingRepo{Repository: store.NewMemory(), cleanups: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, repo.PutBlob(ctx, "stale", []byte("x"), -time.Second))
	require.NoError(t, repo.PutBlob(ctx, "fresh", []byte("y"), time.Hour))

	StartSweeper(ctx, repo, 10*time.Millisecond)

	select {
	case <-repo.cleanups:
	case <-time.After(time.Second):
		t.Fatal("sweeper never ran")
	}

	stale, err := repo.GetBlob(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, stale)

	fresh, err := repo.GetBlob(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), fresh)
}
