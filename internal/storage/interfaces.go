// Package storage defines the persistence interfaces of the trading core.
// In-memory implementations back demo trading; Postgres backs real-money
// trading so that loss limits and the trading lease survive restarts.
package storage

import (
	"context"

	"moltapp-trading/internal/domain"
)

// BreakerStateStore persists per-agent daily circuit-breaker state.
type BreakerStateStore interface {
	// Get retrieves the state for (agentID, day). Returns ErrNotFound
	// if no trade has been recorded for that day yet.
	Get(ctx context.Context, agentID, day string) (*domain.CircuitBreakerState, error)

	// Upsert writes the state for (state.AgentID, state.Day), creating
	// or replacing it.
	Upsert(ctx context.Context, state *domain.CircuitBreakerState) error

	// ListDay retrieves all agents' states for one day.
	ListDay(ctx context.Context, day string) ([]*domain.CircuitBreakerState, error)
}

// LockStore persists the single system-wide trading lease record.
// At most one record exists; lease semantics (expiry, holder identity)
// live in the lock package, not here.
type LockStore interface {
	// Get retrieves the current lease record. Returns ErrNotFound when
	// no record exists.
	Get(ctx context.Context) (*domain.LockRecord, error)

	// Acquire installs rec if and only if no record exists or the
	// existing record has expired as of rec.AcquiredAt, and reports
	// whether it did. The check and the write are one atomic operation
	// within the store, so concurrent callers in separate processes
	// cannot both acquire.
	Acquire(ctx context.Context, rec *domain.LockRecord) (bool, error)

	// Delete removes the lease record if it is held by holder.
	Delete(ctx context.Context, holder string) error
}

// OrderStore persists terminal orders with their full attempt history.
type OrderStore interface {
	// Insert adds a completed order.
	Insert(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order. Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// Recent retrieves up to limit most recent orders, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.Order, error)
}

// OrderArchive appends terminal orders to long-term analytical storage.
// The archive is write-optimized and append-only; reads go through OrderStore.
type OrderArchive interface {
	// Append adds completed orders to the archive.
	Append(ctx context.Context, orders []*domain.Order) error
}

// Pinger is implemented by stores whose backing connection can be probed.
// The health gate uses it for the database reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}
