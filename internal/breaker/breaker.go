// Package breaker implements the per-agent daily loss circuit breaker.
// The breaker only reports state; callers must check IsTriggered before
// submitting orders. That separation keeps it side-effect-free and
// independently testable.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/metrics"
	"moltapp-trading/internal/storage"
)

// DefaultDailyLimitUSD is the per-agent realized loss allowed per UTC day
// before the breaker trips.
const DefaultDailyLimitUSD = 50.0

// Breaker accumulates realized losses per (agent, UTC day) and trips once
// the configured daily limit is crossed. Triggered state is monotonic
// within a day; a new day lazily starts a fresh zero-valued record.
type Breaker struct {
	store         storage.BreakerStateStore
	registry      *metrics.Registry
	logger        *log.Logger
	dailyLimitUSD float64
	now           func() time.Time

	// Serializes the read-modify-write in RecordLoss. The store itself is
	// safe for concurrent use but the loss accumulation is not atomic
	// without this. The mutex only covers this process: losses must be
	// recorded through a single writer (cmd/server's /breaker/loss);
	// writers in two processes would race and the store's monotonic merge
	// keeps the larger total, not the sum.
	mu sync.Mutex
}

// Options contains configuration for creating a Breaker.
type Options struct {
	Store         storage.BreakerStateStore
	Registry      *metrics.Registry
	Logger        *log.Logger
	DailyLimitUSD float64          // Default: DefaultDailyLimitUSD
	Now           func() time.Time // Default: time.Now
}

// New creates a Breaker.
func New(opts Options) *Breaker {
	limit := opts.DailyLimitUSD
	if limit <= 0 {
		limit = DefaultDailyLimitUSD
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Breaker{
		store:         opts.Store,
		registry:      opts.Registry,
		logger:        logger,
		dailyLimitUSD: limit,
		now:           now,
	}
}

// DailyLimitUSD returns the configured per-agent daily loss limit.
func (b *Breaker) DailyLimitUSD() float64 {
	return b.dailyLimitUSD
}

// RecordLoss adds a realized loss to the agent's state for the current UTC
// day, tripping the breaker when the accumulated loss reaches the daily
// limit. Non-positive losses (break-even or profitable trades) leave the
// state untouched. Returns the resulting state.
func (b *Breaker) RecordLoss(ctx context.Context, agentID string, lossUSD float64) (*domain.CircuitBreakerState, error) {
	if agentID == "" {
		return nil, fmt.Errorf("record loss: %w", storage.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	day := domain.BreakerDay(now)

	state, err := b.store.Get(ctx, agentID, day)
	if errors.Is(err, storage.ErrNotFound) {
		state = &domain.CircuitBreakerState{AgentID: agentID, Day: day}
	} else if err != nil {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}

	if lossUSD > 0 {
		state.RealizedLossUSD += lossUSD
	}
	state.UpdatedAt = now

	if !state.Triggered && state.RealizedLossUSD >= b.dailyLimitUSD {
		state.Triggered = true
		triggeredAt := now
		state.TriggeredAt = &triggeredAt
		if b.registry != nil {
			b.registry.IncBreakerTrip()
		}
		b.logger.Printf("circuit breaker tripped: agent=%s day=%s loss=%.2f limit=%.2f",
			agentID, day, state.RealizedLossUSD, b.dailyLimitUSD)
	}

	if err := b.store.Upsert(ctx, state); err != nil {
		return nil, fmt.Errorf("persist breaker state: %w", err)
	}

	cp := *state
	return &cp, nil
}

// IsTriggered reports whether the agent's breaker is tripped for the
// current UTC day. An agent with no recorded trades today is not triggered.
func (b *Breaker) IsTriggered(ctx context.Context, agentID string) (bool, error) {
	day := domain.BreakerDay(b.now())

	state, err := b.store.Get(ctx, agentID, day)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load breaker state: %w", err)
	}
	return state.Triggered, nil
}

// Status returns every agent's state for the current UTC day, keyed by
// agent ID.
func (b *Breaker) Status(ctx context.Context) (map[string]*domain.CircuitBreakerState, error) {
	day := domain.BreakerDay(b.now())

	states, err := b.store.ListDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list breaker states: %w", err)
	}

	result := make(map[string]*domain.CircuitBreakerState, len(states))
	for _, st := range states {
		result[st.AgentID] = st
	}
	return result, nil
}

// Saturated reports whether every agent in the roster is tripped today.
// An empty roster is never saturated.
func (b *Breaker) Saturated(ctx context.Context, agentIDs []string) (bool, error) {
	if len(agentIDs) == 0 {
		return false, nil
	}

	for _, agentID := range agentIDs {
		triggered, err := b.IsTriggered(ctx, agentID)
		if err != nil {
			return false, err
		}
		if !triggered {
			return false, nil
		}
	}
	return true, nil
}
