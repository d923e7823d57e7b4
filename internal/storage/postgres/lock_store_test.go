package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

func TestLockStore_AcquireGetDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	_, err := store.Get(ctx)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &domain.LockRecord{
		Holder:     "agent-claude-7f3a",
		AcquiredAt: now,
		ExpiresAt:  now.Add(90 * time.Second),
	}
	ok, err := store.Acquire(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.Holder, got.Holder)
	assert.WithinDuration(t, rec.ExpiresAt, got.ExpiresAt, time.Millisecond)

	require.NoError(t, store.Delete(ctx, rec.Holder))

	_, err = store.Get(ctx)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLockStore_DeleteRequiresMatchingHolder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	now := time.Now().UTC()
	ok, err := store.Acquire(ctx, &domain.LockRecord{
		Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Delete(ctx, "someone-else"))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Holder)
}

func TestLockStore_AcquireDeniedWhileHeld(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	now := time.Now().UTC()
	ok, err := store.Acquire(ctx, &domain.LockRecord{
		Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Acquire(ctx, &domain.LockRecord{
		Holder: "b", AcquiredAt: now.Add(time.Second), ExpiresAt: now.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	// Still one row, still held by the winner.
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM trading_lock`).Scan(&count))
	assert.Equal(t, 1, count)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Holder)
}

func TestLockStore_AcquireReclaimsExpired(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	now := time.Now().UTC()
	ok, err := store.Acquire(ctx, &domain.LockRecord{
		Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, ok)

	later := now.Add(2 * time.Minute)
	ok, err = store.Acquire(ctx, &domain.LockRecord{
		Holder: "b", AcquiredAt: later, ExpiresAt: later.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Holder)
}

func TestLockStore_ConcurrentAcquireSingleWinner(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	// Simulates concurrent trade processes racing over one database:
	// the conditional upsert must admit exactly one.
	const contenders = 8
	now := time.Now().UTC()

	var wg sync.WaitGroup
	winners := make(chan string, contenders)
	errs := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		holder := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Acquire(ctx, &domain.LockRecord{
				Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(time.Minute),
			})
			if err != nil {
				errs <- err
				return
			}
			if ok {
				winners <- holder
			}
		}()
	}
	wg.Wait()
	close(winners)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	var won []string
	for h := range winners {
		won = append(won, h)
	}
	require.Len(t, won, 1)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, won[0], got.Holder)
}
