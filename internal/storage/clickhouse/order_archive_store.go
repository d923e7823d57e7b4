package clickhouse

import (
	"context"
	"fmt"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

// OrderArchiveStore implements storage.OrderArchive using ClickHouse.
// Rows are append-only; MergeTree does not enforce uniqueness, so callers
// must archive each order exactly once.
type OrderArchiveStore struct {
	conn *Conn
}

// NewOrderArchiveStore creates a new OrderArchiveStore.
func NewOrderArchiveStore(conn *Conn) *OrderArchiveStore {
	return &OrderArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.OrderArchive = (*OrderArchiveStore)(nil)

// Append adds completed orders to the archive.
func (s *OrderArchiveStore) Append(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO order_archive (
			order_id, agent_id, side, symbol, mint, amount,
			final_status, failure_kind, failure_code, signature,
			attempt_count, last_error, created_at, completed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range orders {
		var lastError string
		if last := o.LastAttempt(); last != nil {
			lastError = last.ErrorMessage
		}
		err = batch.Append(
			o.OrderID, o.AgentID, string(o.Side), o.Symbol, o.Mint, o.Amount,
			string(o.FinalStatus), string(o.FailureKind), o.FailureCode, o.Signature,
			uint32(len(o.Attempts)), lastError, o.CreatedAt, o.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// CountByAgent returns the number of archived orders per agent.
// Used by reporting, not by the hot execution path.
func (s *OrderArchiveStore) CountByAgent(ctx context.Context) (map[string]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT agent_id, count(*) FROM order_archive GROUP BY agent_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var agentID string
		var n uint64
		if err := rows.Scan(&agentID, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[agentID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count rows: %w", err)
	}

	return counts, nil
}
