package domain

import "time"

// Side is the direction of an order.
type Side string

// Order sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

// Order lifecycle states. Created → Quoted → Submitted are transient;
// Confirmed, Rejected and Failed are terminal.
const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusQuoted    OrderStatus = "quoted"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusRejected, OrderStatusFailed:
		return true
	}
	return false
}

// AttemptOutcome classifies the result of a single submission attempt.
type AttemptOutcome string

// Attempt outcomes.
const (
	AttemptSuccess        AttemptOutcome = "success"
	AttemptRetryableError AttemptOutcome = "retryable_error"
	AttemptFatalError     AttemptOutcome = "fatal_error"
)

// ExecutionAttempt records one submission attempt of an order.
// Attempts within an order are strictly sequential.
type ExecutionAttempt struct {
	AttemptNumber int // 1-based
	StartedAt     time.Time
	Duration      time.Duration
	Outcome       AttemptOutcome
	Signature     string // transaction signature on success
	ErrorCode     string // venue/infra error code otherwise
	ErrorMessage  string
}

// Order is one swap request and its full execution history. An Order is
// owned exclusively by the caller that created it and is never shared
// across concurrent executions.
type Order struct {
	OrderID     string
	AgentID     string
	Side        Side
	Symbol      string
	Mint        string
	Amount      uint64 // base units of the input asset
	Taker       string // wallet address
	Quote       *Quote
	Attempts    []ExecutionAttempt
	FinalStatus OrderStatus
	FailureKind ErrorKind // zero value when confirmed
	FailureCode string
	Signature   string // confirmed transaction signature
	CreatedAt   time.Time
	CompletedAt time.Time
}

// LastAttempt returns the most recent attempt, or nil if none were made.
func (o *Order) LastAttempt() *ExecutionAttempt {
	if len(o.Attempts) == 0 {
		return nil
	}
	return &o.Attempts[len(o.Attempts)-1]
}
