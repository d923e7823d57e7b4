package solana

import "context"

// RPCClient defines the Solana RPC surface the trading core needs: a
// liveness probe for the health gate and transaction lookup for post-trade
// confirmation.
type RPCClient interface {
	// GetSlot retrieves the current slot. Used as a chain liveness probe.
	GetSlot(ctx context.Context) (int64, error)

	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns (nil, nil) when the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction is a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction execution metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// Succeeded reports whether the transaction executed without error.
func (t *Transaction) Succeeded() bool {
	return t != nil && (t.Meta == nil || t.Meta.Err == nil)
}
