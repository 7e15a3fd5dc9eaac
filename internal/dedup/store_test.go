package dedup_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/testutil"
)

func TestPostgresStore_Claim(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := dedup.NewPostgresStore(pool)
	ctx := context.Background()

	key := dedup.Key{OperationID: "op-1", Class: dedup.ClassAPI}
	now := time.Now()

	won, err := store.Claim(ctx, key, now, now.Add(time.Hour), nil)
	require.NoError(t, err)
	require.True(t, won)

	won, err = store.Claim(ctx, key, now, now.Add(time.Hour), nil)
	require.NoError(t, err)
	require.False(t, won)

	// Same id in a different class is a distinct operation.
	won, err = store.Claim(ctx, dedup.Key{OperationID: "op-1", Class: dedup.ClassMessage}, now, now.Add(time.Hour), nil)
	require.NoError(t, err)
	require.True(t, won)
}

func TestPostgresStore_Claim_ConcurrentSingleWinner(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := dedup.NewPostgresStore(pool)
	ctx := context.Background()

	key := dedup.Key{OperationID: "op-race", Class: dedup.ClassAPI}
	now := time.Now()

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.Claim(ctx, key, now, now.Add(time.Hour), nil)
			require.NoError(t, err)
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)
}

func TestPostgresStore_Exists(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := dedup.NewPostgresStore(pool)
	ctx := context.Background()

	key := dedup.Key{OperationID: "op-2", Class: dedup.ClassMessage}

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	now := time.Now()
	_, err = store.Claim(ctx, key, now, now.Add(time.Hour), nil)
	require.NoError(t, err)

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestPostgresStore_GetResult(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := dedup.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now()

	t.Run("absent key", func(t *testing.T) {
		_, found, err := store.GetResult(ctx, dedup.Key{OperationID: "nope", Class: dedup.ClassAPI}, now)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("claimed without result", func(t *testing.T) {
		key := dedup.Key{OperationID: "op-noresult", Class: dedup.ClassAPI}
		_, err := store.Claim(ctx, key, now, now.Add(time.Hour), nil)
		require.NoError(t, err)

		_, found, err := store.GetResult(ctx, key, now)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("result within ttl", func(t *testing.T) {
		key := dedup.Key{OperationID: "op-result", Class: dedup.ClassAPI}
		_, err := store.Claim(ctx, key, now, now.Add(time.Hour), []byte(`{"event_id":"e1"}`))
		require.NoError(t, err)

		result, found, err := store.GetResult(ctx, key, now)
		require.NoError(t, err)
		require.True(t, found)
		require.JSONEq(t, `{"event_id":"e1"}`, string(result))
	})

	t.Run("expired result is not replayed", func(t *testing.T) {
		key := dedup.Key{OperationID: "op-expired", Class: dedup.ClassAPI}
		_, err := store.Claim(ctx, key, now.Add(-2*time.Hour), now.Add(-time.Hour), []byte(`{}`))
		require.NoError(t, err)

		_, found, err := store.GetResult(ctx, key, now)
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestPostgresStore_UpdateResult(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := dedup.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now()

	key := dedup.Key{OperationID: "op-3", Class: dedup.ClassAPI}
	_, err := store.Claim(ctx, key, now, now.Add(time.Hour), nil)
	require.NoError(t, err)

	require.NoError(t, store.UpdateResult(ctx, key, []byte(`{"version":4}`)))

	result, found, err := store.GetResult(ctx, key, now)
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"version":4}`, string(result))
}

func TestPostgresStore_Release(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := dedup.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now()

	key := dedup.Key{OperationID: "op-4", Class: dedup.ClassAPI}
	_, err := store.Claim(ctx, key, now, now.Add(time.Hour), nil)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, key))

	won, err := store.Claim(ctx, key, now, now.Add(time.Hour), nil)
	require.NoError(t, err)
	require.True(t, won)
}

func TestPostgresStore_SweepExpired(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := dedup.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now()

	for _, op := range []struct {
		id      string
		expires time.Time
	}{
		{"stale-1", now.Add(-time.Minute)},
		{"stale-2", now.Add(-time.Hour)},
		{"live-1", now.Add(time.Hour)},
	} {
		_, err := store.Claim(ctx, dedup.Key{OperationID: op.id, Class: dedup.ClassAPI}, now.Add(-2*time.Hour), op.expires, nil)
		require.NoError(t, err)
	}

	deleted, err := store.SweepExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	exists, err := store.Exists(ctx, dedup.Key{OperationID: "live-1", Class: dedup.ClassAPI})
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists(ctx, dedup.Key{OperationID: "stale-1", Class: dedup.ClassAPI})
	require.NoError(t, err)
	require.False(t, exists)
}
