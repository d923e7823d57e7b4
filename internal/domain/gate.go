package domain

import "time"

// GateMode selects which checks are required for the gate to open.
type GateMode string

// Gate modes. Strict is used when trading with real funds.
const (
	GateModeStrict  GateMode = "strict"
	GateModeRelaxed GateMode = "relaxed"
)

// CheckStatus is the outcome of one health check.
type CheckStatus string

// Check statuses.
const (
	CheckPass CheckStatus = "pass"
	CheckFail CheckStatus = "fail"
	CheckWarn CheckStatus = "warn"
	CheckSkip CheckStatus = "skip"
)

// Gate check names.
const (
	CheckDatabase     = "database"
	CheckPriceFeed    = "price_feed"
	CheckChainRPC     = "chain_rpc"
	CheckProviders    = "reasoning_providers"
	CheckTradingLock  = "trading_lock"
	CheckCircuitState = "circuit_breakers"
)

// GateCheck is the result of a single health check.
type GateCheck struct {
	Name     string
	Status   CheckStatus
	Latency  time.Duration
	Message  string
	Required bool
}

// GateResult is the aggregate decision over one gate run. It is a snapshot:
// each run produces a fresh result and nothing is persisted.
type GateResult struct {
	Proceed     bool
	Mode        GateMode
	Checks      []GateCheck
	BlockReason string
	StartedAt   time.Time
	Duration    time.Duration
}

// FailedChecks returns the names of all failed checks.
func (r GateResult) FailedChecks() []string {
	var failed []string
	for _, c := range r.Checks {
		if c.Status == CheckFail {
			failed = append(failed, c.Name)
		}
	}
	return failed
}
