//go:build integration

package nullifier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorid/internal/proof/nullifier"
	"anchorid/pkg/testutil/containers"
)

func TestPostgresRegistry_ConsumeOnce(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	reg := nullifier.NewPostgresRegistry(pg.DB)

	expires := time.Now().Add(time.Hour)

	won, err := reg.Consume(ctx, "hash-1", "did:anchor:verifier-a", expires)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = reg.Consume(ctx, "hash-1", "did:anchor:verifier-a", expires)
	require.NoError(t, err)
	assert.False(t, won, "second consume of the same pair must lose")

	// A different verifier is a distinct pair.
	won, err = reg.Consume(ctx, "hash-1", "did:anchor:verifier-b", expires)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestPostgresRegistry_ConsumeConcurrent(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	reg := nullifier.NewPostgresRegistry(pg.DB)

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := reg.Consume(ctx, "hash-race", "did:anchor:verifier", time.Now().Add(time.Hour))
			require.NoError(t, err)
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for won := range wins {
		if won {
			total++
		}
	}
	assert.Equal(t, 1, total, "exactly one concurrent consumer may win")
}

func TestPostgresRegistry_PruneExpired(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	reg := nullifier.NewPostgresRegistry(pg.DB)

	_, err := reg.Consume(ctx, "hash-old", "did:anchor:verifier", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = reg.Consume(ctx, "hash-new", "did:anchor:verifier", time.Now().Add(time.Hour))
	require.NoError(t, err)

	pruned, err := reg.PruneExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	// The pruned pair is consumable again; the live one is not.
	won, err := reg.Consume(ctx, "hash-old", "did:anchor:verifier", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, won)
	won, err = reg.Consume(ctx, "hash-new", "did:anchor:verifier", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, won)
}

func TestRedisRegistry_ConsumeOnce(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))
	reg := nullifier.NewRedisRegistry(rc.Client)

	expires := time.Now().Add(time.Hour)

	won, err := reg.Consume(ctx, "hash-1", "did:anchor:verifier-a", expires)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = reg.Consume(ctx, "hash-1", "did:anchor:verifier-a", expires)
	require.NoError(t, err)
	assert.False(t, won)

	won, err = reg.Consume(ctx, "hash-1", "did:anchor:verifier-b", expires)
	require.NoError(t, err)
	assert.True(t, won)
}
