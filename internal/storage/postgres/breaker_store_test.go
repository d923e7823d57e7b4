package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

func TestBreakerStateStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBreakerStateStore(pool)

	now := time.Now().UTC().Truncate(time.Millisecond)
	state := &domain.CircuitBreakerState{
		AgentID:         "claude",
		Day:             "2026-02-14",
		RealizedLossUSD: 4.5,
		UpdatedAt:       now,
	}

	require.NoError(t, store.Upsert(ctx, state))

	got, err := store.Get(ctx, "claude", "2026-02-14")
	require.NoError(t, err)
	assert.Equal(t, "claude", got.AgentID)
	assert.Equal(t, "2026-02-14", got.Day)
	assert.InDelta(t, 4.5, got.RealizedLossUSD, 1e-9)
	assert.False(t, got.Triggered)
	assert.Nil(t, got.TriggeredAt)
}

func TestBreakerStateStore_GetMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBreakerStateStore(pool)

	_, err := store.Get(context.Background(), "claude", "2026-02-14")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestBreakerStateStore_TriggeredIsMonotonic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBreakerStateStore(pool)

	now := time.Now().UTC().Truncate(time.Millisecond)
	trippedAt := now.Add(-time.Minute)

	require.NoError(t, store.Upsert(ctx, &domain.CircuitBreakerState{
		AgentID: "claude", Day: "2026-02-14",
		RealizedLossUSD: 12.0, Triggered: true, TriggeredAt: &trippedAt, UpdatedAt: now,
	}))

	// A stale writer that never observed the trip cannot undo it, and
	// cannot shrink the recorded loss.
	require.NoError(t, store.Upsert(ctx, &domain.CircuitBreakerState{
		AgentID: "claude", Day: "2026-02-14",
		RealizedLossUSD: 3.0, Triggered: false, UpdatedAt: now.Add(time.Second),
	}))

	got, err := store.Get(ctx, "claude", "2026-02-14")
	require.NoError(t, err)
	assert.True(t, got.Triggered)
	assert.InDelta(t, 12.0, got.RealizedLossUSD, 1e-9)
	require.NotNil(t, got.TriggeredAt)
	assert.WithinDuration(t, trippedAt, *got.TriggeredAt, time.Millisecond)
}

func TestBreakerStateStore_ListDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBreakerStateStore(pool)

	now := time.Now().UTC()
	for _, agent := range []string{"gpt", "claude", "gemini"} {
		require.NoError(t, store.Upsert(ctx, &domain.CircuitBreakerState{
			AgentID: agent, Day: "2026-02-14", RealizedLossUSD: 1, UpdatedAt: now,
		}))
	}
	require.NoError(t, store.Upsert(ctx, &domain.CircuitBreakerState{
		AgentID: "claude", Day: "2026-02-13", RealizedLossUSD: 9, UpdatedAt: now,
	}))

	states, err := store.ListDay(ctx, "2026-02-14")
	require.NoError(t, err)
	require.Len(t, states, 3)

	// Ordered by agent_id.
	assert.Equal(t, "claude", states[0].AgentID)
	assert.Equal(t, "gemini", states[1].AgentID)
	assert.Equal(t, "gpt", states[2].AgentID)
}
