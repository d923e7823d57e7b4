package domain

import "time"

// BreakerDayFormat is the layout of CircuitBreakerState.Day.
const BreakerDayFormat = "2006-01-02"

// BreakerDay returns the UTC calendar day key for t.
func BreakerDay(t time.Time) string {
	return t.UTC().Format(BreakerDayFormat)
}

// CircuitBreakerState tracks one agent's realized loss for one UTC day.
// Once Triggered becomes true it stays true for the rest of that day; a new
// day gets a fresh zero-valued record and old records are retained for
// history.
type CircuitBreakerState struct {
	AgentID         string
	Day             string // UTC day, BreakerDayFormat
	RealizedLossUSD float64
	Triggered       bool
	TriggeredAt     *time.Time
	UpdatedAt       time.Time
}
