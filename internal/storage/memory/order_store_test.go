package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/storage"
)

func testOrder(orderID string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		OrderID:     orderID,
		AgentID:     "claude",
		Side:        domain.SideBuy,
		Symbol:      "AAPLx",
		Mint:        "XsbEhLAtcf6HdfpFZ5xEMdqW8nfAvcsP5bdudRLJzJp",
		Amount:      100_000,
		Taker:       "4Nd1mYQJkT2hYyYS9AxR7P7q6eVCBLYHeTfVfS24ta2j",
		Quote: &domain.Quote{
			RequestID:   "req-" + orderID,
			InAmount:    100_000,
			OutAmount:   39_215,
			Transaction: []byte{1, 2, 3},
		},
		Attempts: []domain.ExecutionAttempt{
			{AttemptNumber: 1, Outcome: domain.AttemptSuccess, Signature: "sig-" + orderID},
		},
		FinalStatus: domain.OrderStatusConfirmed,
		Signature:   "sig-" + orderID,
		CreatedAt:   createdAt,
		CompletedAt: createdAt.Add(2 * time.Second),
	}
}

func TestOrderStore_InsertAndGet(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	order := testOrder("ord-1", time.Now().UTC())
	if err := store.Insert(ctx, order); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Signature != order.Signature {
		t.Errorf("Signature mismatch: got %q, want %q", got.Signature, order.Signature)
	}
	if len(got.Attempts) != 1 {
		t.Errorf("Attempts length: got %d, want 1", len(got.Attempts))
	}
}

func TestOrderStore_GetMissing(t *testing.T) {
	store := NewOrderStore()

	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderStore_RecentNewestFirst(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	base := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"ord-a", "ord-b", "ord-c"} {
		if err := store.Insert(ctx, testOrder(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
	}

	orders, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("Recent length: got %d, want 2", len(orders))
	}
	if orders[0].OrderID != "ord-c" || orders[1].OrderID != "ord-b" {
		t.Errorf("Recent order wrong: got [%s %s], want [ord-c ord-b]", orders[0].OrderID, orders[1].OrderID)
	}
}

func TestOrderStore_InsertStoresCopy(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	order := testOrder("ord-1", time.Now().UTC())
	if err := store.Insert(ctx, order); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the input after insert must not affect the stored order.
	order.Quote.Transaction[0] = 0xFF
	order.Attempts[0].Signature = "tampered"

	got, err := store.GetByID(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Quote.Transaction[0] != 1 {
		t.Error("stored quote transaction was mutated through the inserted pointer")
	}
	if got.Attempts[0].Signature != "sig-ord-1" {
		t.Error("stored attempt was mutated through the inserted pointer")
	}
}
