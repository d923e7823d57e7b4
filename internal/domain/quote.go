package domain

import "time"

// Quote is a venue-provided, time-bounded price and route for a prospective
// swap. It is immutable once returned by the venue; the unsigned transaction
// bytes must reach the signer unmodified.
type Quote struct {
	RequestID    string // venue request identifier, idempotency key for execute
	InputMint    string
	OutputMint   string
	InAmount     uint64 // base units of InputMint
	OutAmount    uint64 // base units of OutputMint
	SlippageBps  int    // venue-side slippage tolerance
	SwapType     string // e.g. "aggregator", "rfq"
	Transaction  []byte // unsigned transaction, decoded from base64
	ReceivedAt   time.Time
}

// ReferencePrice is an independent USD price observation used only to
// sanity-check a Quote, never to execute.
type ReferencePrice struct {
	Mint       string
	USDPrice   float64
	ObservedAt time.Time
}
