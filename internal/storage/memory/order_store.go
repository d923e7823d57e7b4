package memory

import (
	"context"
	"sort"
	"sync"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

// OrderStore is an in-memory implementation of storage.OrderStore.
type OrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Order
}

// NewOrderStore creates an empty in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		data: make(map[string]*domain.Order),
	}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Insert adds a completed order.
func (s *OrderStore) Insert(_ context.Context, order *domain.Order) error {
	if order == nil || order.OrderID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[order.OrderID] = copyOrder(order)
	return nil
}

// GetByID retrieves an order by ID.
func (s *OrderStore) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.data[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyOrder(o), nil
}

// Recent retrieves up to limit most recent orders, newest first.
func (s *OrderStore) Recent(_ context.Context, limit int) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0, len(s.data))
	for _, o := range s.data {
		result = append(result, copyOrder(o))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].OrderID > result[j].OrderID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// copyOrder deep-copies an order so stored state cannot be mutated
// externally.
func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	if o.Quote != nil {
		q := *o.Quote
		q.Transaction = append([]byte(nil), o.Quote.Transaction...)
		cp.Quote = &q
	}
	cp.Attempts = append([]domain.ExecutionAttempt(nil), o.Attempts...)
	return &cp
}
