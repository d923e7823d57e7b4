package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

// BreakerStateStore implements storage.BreakerStateStore using PostgreSQL.
type BreakerStateStore struct {
	pool *Pool
}

// NewBreakerStateStore creates a new BreakerStateStore.
func NewBreakerStateStore(pool *Pool) *BreakerStateStore {
	return &BreakerStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BreakerStateStore = (*BreakerStateStore)(nil)

// Get retrieves the state for (agentID, day). Returns ErrNotFound if no
// trade has been recorded for that day yet.
func (s *BreakerStateStore) Get(ctx context.Context, agentID, day string) (*domain.CircuitBreakerState, error) {
	query := `
		SELECT agent_id, day, realized_loss_usd, triggered, triggered_at, updated_at
		FROM breaker_states
		WHERE agent_id = $1 AND day = $2
	`

	row := s.pool.QueryRow(ctx, query, agentID, day)
	st, err := scanBreakerState(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get breaker state: %w", err)
	}
	return st, nil
}

// Upsert writes the state for (state.AgentID, state.Day). The triggered
// flag never transitions back to false within a day: the write keeps the OR
// of old and new values so a racing stale writer cannot un-trip a breaker.
func (s *BreakerStateStore) Upsert(ctx context.Context, state *domain.CircuitBreakerState) error {
	if state == nil || state.AgentID == "" || state.Day == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO breaker_states (agent_id, day, realized_loss_usd, triggered, triggered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id, day) DO UPDATE SET
			realized_loss_usd = GREATEST(breaker_states.realized_loss_usd, EXCLUDED.realized_loss_usd),
			triggered         = breaker_states.triggered OR EXCLUDED.triggered,
			triggered_at      = COALESCE(breaker_states.triggered_at, EXCLUDED.triggered_at),
			updated_at        = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		state.AgentID,
		state.Day,
		state.RealizedLossUSD,
		state.Triggered,
		state.TriggeredAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert breaker state: %w", err)
	}
	return nil
}

// ListDay retrieves all agents' states for one day.
func (s *BreakerStateStore) ListDay(ctx context.Context, day string) ([]*domain.CircuitBreakerState, error) {
	query := `
		SELECT agent_id, day, realized_loss_usd, triggered, triggered_at, updated_at
		FROM breaker_states
		WHERE day = $1
		ORDER BY agent_id ASC
	`

	rows, err := s.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("list breaker states: %w", err)
	}
	defer rows.Close()

	var result []*domain.CircuitBreakerState
	for rows.Next() {
		st, err := scanBreakerState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breaker state: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// scanBreakerState scans one row into a CircuitBreakerState.
func scanBreakerState(row pgx.Row) (*domain.CircuitBreakerState, error) {
	var st domain.CircuitBreakerState
	err := row.Scan(
		&st.AgentID,
		&st.Day,
		&st.RealizedLossUSD,
		&st.Triggered,
		&st.TriggeredAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
