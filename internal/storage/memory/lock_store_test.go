package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

func TestLockStore_AcquireAndGet(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &domain.LockRecord{
		Holder:     "agent-claude-7f3a",
		AcquiredAt: now,
		ExpiresAt:  now.Add(90 * time.Second),
	}

	ok, err := store.Acquire(ctx, rec)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("Acquire on an empty store should succeed")
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Holder != rec.Holder {
		t.Errorf("Holder mismatch: got %q, want %q", got.Holder, rec.Holder)
	}
}

func TestLockStore_GetEmpty(t *testing.T) {
	store := NewLockStore()

	_, err := store.Get(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLockStore_AcquireDeniedWhileHeld(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	now := time.Now().UTC()
	ok, err := store.Acquire(ctx, &domain.LockRecord{Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)})
	if err != nil || !ok {
		t.Fatalf("first Acquire failed: ok=%t err=%v", ok, err)
	}

	ok, err = store.Acquire(ctx, &domain.LockRecord{Holder: "b", AcquiredAt: now.Add(time.Second), ExpiresAt: now.Add(2 * time.Minute)})
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if ok {
		t.Error("Acquire should be denied while the lease is held")
	}

	// The loser must not overwrite the winner's record.
	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Holder != "a" {
		t.Errorf("Holder after denied Acquire: got %q, want %q", got.Holder, "a")
	}
}

func TestLockStore_AcquireReclaimsExpired(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	now := time.Now().UTC()
	ok, err := store.Acquire(ctx, &domain.LockRecord{Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)})
	if err != nil || !ok {
		t.Fatalf("first Acquire failed: ok=%t err=%v", ok, err)
	}

	later := now.Add(2 * time.Minute)
	ok, err = store.Acquire(ctx, &domain.LockRecord{Holder: "b", AcquiredAt: later, ExpiresAt: later.Add(time.Minute)})
	if err != nil {
		t.Fatalf("Acquire after expiry failed: %v", err)
	}
	if !ok {
		t.Fatal("Acquire should reclaim an expired lease")
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Holder != "b" {
		t.Errorf("Holder after reclaim: got %q, want %q", got.Holder, "b")
	}
}

func TestLockStore_AcquireInvalidInput(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	if _, err := store.Acquire(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil record: expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.Acquire(ctx, &domain.LockRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty holder: expected ErrInvalidInput, got %v", err)
	}
}

func TestLockStore_DeleteMatchesHolder(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	now := time.Now().UTC()
	if ok, err := store.Acquire(ctx, &domain.LockRecord{Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}); err != nil || !ok {
		t.Fatalf("Acquire failed: ok=%t err=%v", ok, err)
	}

	// Wrong holder is a no-op.
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete with wrong holder failed: %v", err)
	}
	if _, err := store.Get(ctx); err != nil {
		t.Fatalf("record should survive wrong-holder delete: %v", err)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
