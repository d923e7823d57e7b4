// Package memory provides in-memory storage implementations. State does not
// survive restart; suitable for paper trading and tests only.
package memory

import (
	"context"
	"sync"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

// BreakerStateStore is an in-memory implementation of
// storage.BreakerStateStore.
type BreakerStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CircuitBreakerState // keyed by agentID + "|" + day
}

// NewBreakerStateStore creates an empty in-memory breaker store.
func NewBreakerStateStore() *BreakerStateStore {
	return &BreakerStateStore{
		data: make(map[string]*domain.CircuitBreakerState),
	}
}

// Compile-time interface check.
var _ storage.BreakerStateStore = (*BreakerStateStore)(nil)

func breakerKey(agentID, day string) string {
	return agentID + "|" + day
}

// Get retrieves the state for (agentID, day).
func (s *BreakerStateStore) Get(_ context.Context, agentID, day string) (*domain.CircuitBreakerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[breakerKey(agentID, day)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// Upsert writes the state for (state.AgentID, state.Day).
func (s *BreakerStateStore) Upsert(_ context.Context, state *domain.CircuitBreakerState) error {
	if state == nil || state.AgentID == "" || state.Day == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *state
	s.data[breakerKey(state.AgentID, state.Day)] = &cp
	return nil
}

// ListDay retrieves all agents' states for one day.
func (s *BreakerStateStore) ListDay(_ context.Context, day string) ([]*domain.CircuitBreakerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CircuitBreakerState
	for _, st := range s.data {
		if st.Day == day {
			cp := *st
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Ping implements storage.Pinger; an in-memory store is always reachable.
func (s *BreakerStateStore) Ping(context.Context) error { return nil }
