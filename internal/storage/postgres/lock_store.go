package postgres

import (
	"context"
	"fmt"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

// LockStore implements storage.LockStore using PostgreSQL. The table holds
// at most one row, enforced by a fixed primary key.
type LockStore struct {
	pool *Pool
}

// NewLockStore creates a new LockStore.
func NewLockStore(pool *Pool) *LockStore {
	return &LockStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LockStore = (*LockStore)(nil)

// lockRowID is the fixed primary key of the single lease row.
const lockRowID = 1

// Get retrieves the current lease record.
func (s *LockStore) Get(ctx context.Context) (*domain.LockRecord, error) {
	query := `
		SELECT holder, acquired_at, expires_at
		FROM trading_lock
		WHERE id = $1
	`

	var rec domain.LockRecord
	err := s.pool.QueryRow(ctx, query, lockRowID).Scan(&rec.Holder, &rec.AcquiredAt, &rec.ExpiresAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trading lock: %w", err)
	}
	return &rec, nil
}

// Acquire installs rec if the lease row is absent or expired as of
// rec.AcquiredAt. The conditional upsert is a single statement, so two
// processes racing over one database cannot both win: the ON CONFLICT
// branch takes a row lock and re-evaluates its WHERE clause against the
// committed row.
func (s *LockStore) Acquire(ctx context.Context, rec *domain.LockRecord) (bool, error) {
	if rec == nil || rec.Holder == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trading_lock (id, holder, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			holder      = EXCLUDED.holder,
			acquired_at = EXCLUDED.acquired_at,
			expires_at  = EXCLUDED.expires_at
		WHERE trading_lock.expires_at <= EXCLUDED.acquired_at
	`

	tag, err := s.pool.Exec(ctx, query, lockRowID, rec.Holder, rec.AcquiredAt, rec.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("acquire trading lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the lease record if it is held by holder.
func (s *LockStore) Delete(ctx context.Context, holder string) error {
	query := `DELETE FROM trading_lock WHERE id = $1 AND holder = $2`

	_, err := s.pool.Exec(ctx, query, lockRowID, holder)
	if err != nil {
		return fmt.Errorf("delete trading lock: %w", err)
	}
	return nil
}
