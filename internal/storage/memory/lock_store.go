package memory

import (
	"context"
	"sync"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

// LockStore is an in-memory implementation of storage.LockStore.
type LockStore struct {
	mu  sync.RWMutex
	rec *domain.LockRecord
}

// NewLockStore creates an empty in-memory lock store.
func NewLockStore() *LockStore {
	return &LockStore{}
}

// Compile-time interface check.
var _ storage.LockStore = (*LockStore)(nil)

// Get retrieves the current lease record.
func (s *LockStore) Get(context.Context) (*domain.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rec == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.rec
	return &cp, nil
}

// Acquire installs rec if the lease is free or expired as of
// rec.AcquiredAt. The check and write happen under one mutex hold.
func (s *LockStore) Acquire(_ context.Context, rec *domain.LockRecord) (bool, error) {
	if rec == nil || rec.Holder == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec != nil && !s.rec.ExpiredAt(rec.AcquiredAt) {
		return false, nil
	}

	cp := *rec
	s.rec = &cp
	return true, nil
}

// Delete removes the lease record if held by holder.
func (s *LockStore) Delete(_ context.Context, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec != nil && s.rec.Holder == holder {
		s.rec = nil
	}
	return nil
}
