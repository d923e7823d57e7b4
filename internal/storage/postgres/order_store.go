package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL. The attempt
// history rides along as JSONB so a failed order's retries can be inspected
// after a restart.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Insert adds a completed order.
func (s *OrderStore) Insert(ctx context.Context, order *domain.Order) error {
	if order == nil || order.OrderID == "" {
		return storage.ErrInvalidInput
	}

	attempts, err := json.Marshal(order.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	query := `
		INSERT INTO orders (
			order_id, agent_id, side, symbol, mint, amount, taker,
			final_status, failure_kind, failure_code, signature,
			attempts, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = s.pool.Exec(ctx, query,
		order.OrderID,
		order.AgentID,
		string(order.Side),
		order.Symbol,
		order.Mint,
		int64(order.Amount),
		order.Taker,
		string(order.FinalStatus),
		string(order.FailureKind),
		order.FailureCode,
		order.Signature,
		attempts,
		order.CreatedAt,
		order.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by ID.
func (s *OrderStore) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	query := orderSelect + ` WHERE order_id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

// Recent retrieves up to limit most recent orders, newest first.
func (s *OrderStore) Recent(ctx context.Context, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := orderSelect + ` ORDER BY created_at DESC, order_id DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

const orderSelect = `
	SELECT order_id, agent_id, side, symbol, mint, amount, taker,
	       final_status, failure_kind, failure_code, signature,
	       attempts, created_at, completed_at
	FROM orders`

// scanOrder scans one row into an Order.
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o           domain.Order
		side        string
		status      string
		failureKind string
		amount      int64
		attempts    []byte
	)
	err := row.Scan(
		&o.OrderID,
		&o.AgentID,
		&side,
		&o.Symbol,
		&o.Mint,
		&amount,
		&o.Taker,
		&status,
		&failureKind,
		&o.FailureCode,
		&o.Signature,
		&attempts,
		&o.CreatedAt,
		&o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.FinalStatus = domain.OrderStatus(status)
	o.FailureKind = domain.ErrorKind(failureKind)
	o.Amount = uint64(amount)
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &o.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshal attempts: %w", err)
		}
	}
	return &o, nil
}
