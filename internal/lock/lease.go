// Package lock implements the exclusive trading lease that serializes
// trading rounds system-wide. It is a lease, not a mutex: an expired
// record counts as abandoned and can be reclaimed, which is what makes
// recovery after a crashed round possible.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/metrics"
	"moltapp-trading/internal/storage"
)

// DefaultTTL bounds how long a round may hold the lease before it is
// treated as abandoned.
const DefaultTTL = 90 * time.Second

// Lease coordinates exclusive access to a trading round. There is no
// queueing: a failed TryAcquire is reported immediately and the caller is
// expected to abort its round, not wait. Mutual exclusion is enforced by
// the store's atomic conditional Acquire, so it holds across separate
// processes sharing one database, not just within this one.
type Lease struct {
	store    storage.LockStore
	registry *metrics.Registry
	logger   *log.Logger
	now      func() time.Time
}

// Options contains configuration for creating a Lease.
type Options struct {
	Store    storage.LockStore
	Registry *metrics.Registry
	Logger   *log.Logger
	Now      func() time.Time // Default: time.Now
}

// New creates a Lease.
func New(opts Options) *Lease {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Lease{
		store:    opts.Store,
		registry: opts.Registry,
		logger:   logger,
		now:      now,
	}
}

// TryAcquire attempts to take the lease for holder with the given TTL.
// It succeeds when no record exists or the existing record has expired.
// Returns false immediately on contention.
func (l *Lease) TryAcquire(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	if holder == "" {
		return false, fmt.Errorf("acquire lease: %w", storage.ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := l.now().UTC()
	rec := &domain.LockRecord{
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	acquired, err := l.store.Acquire(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		if l.registry != nil {
			l.registry.IncLockContention()
		}
		if current, err := l.store.Get(ctx); err == nil {
			l.logger.Printf("trading lock held: holder=%s expires_in=%s",
				current.Holder, current.ExpiresAt.Sub(now).Round(time.Millisecond))
		} else {
			l.logger.Printf("trading lock held")
		}
		return false, nil
	}

	l.logger.Printf("trading lock acquired: holder=%s ttl=%s", holder, ttl)
	return true, nil
}

// Release clears the lease if it is still held by holder. Releasing a
// lease that expired and was reclaimed by someone else is a no-op: a slow
// former holder must not clear the new holder's lock.
func (l *Lease) Release(ctx context.Context, holder string) error {
	if holder == "" {
		return fmt.Errorf("release lease: %w", storage.ErrInvalidInput)
	}

	if err := l.store.Delete(ctx, holder); err != nil {
		return fmt.Errorf("delete lease: %w", err)
	}
	return nil
}

// Status returns the current lease record, or nil when the lease is free.
// An expired-but-unreclaimed record is still reported so operators can see
// who abandoned it.
func (l *Lease) Status(ctx context.Context) (*domain.LockRecord, error) {
	rec, err := l.store.Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	return rec, nil
}
