// Package gate implements the pre-round health gate. Before a trading
// round may begin, six dependency checks run: database, price feed, chain
// RPC and reasoning providers over the network, then the trading lock and
// circuit breaker saturation locally. The four network checks run
// concurrently, each against its own timeout, so one slow dependency can
// neither stall the others nor blur which dependency actually failed.
package gate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"moltapp-trading/internal/breaker"
	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/lock"
	"moltapp-trading/internal/metrics"
	"moltapp-trading/internal/pricefeed"
	"moltapp-trading/internal/providers"
	"moltapp-trading/internal/solana"
	"moltapp-trading/internal/storage"
)

// DefaultCheckTimeout bounds each individual network check.
const DefaultCheckTimeout = 5 * time.Second

// defaultRecentResults bounds the retained gate run history.
const defaultRecentResults = 32

// Runner executes gate runs. Construct once and share; all methods are
// safe for concurrent use.
type Runner struct {
	db        storage.Pinger
	feed      pricefeed.Feed
	rpc       solana.RPCClient
	providers *providers.Checker
	lease     *lock.Lease
	breaker   *breaker.Breaker
	agents    []string

	registry     *metrics.Registry
	logger       *log.Logger
	checkTimeout time.Duration
	now          func() time.Time

	history *resultRing
}

// Options contains configuration for creating a Runner.
type Options struct {
	DB        storage.Pinger
	Feed      pricefeed.Feed
	RPC       solana.RPCClient
	Providers *providers.Checker
	Lease     *lock.Lease
	Breaker   *breaker.Breaker
	Agents    []string // roster used for the breaker saturation check

	Registry      *metrics.Registry
	Logger        *log.Logger
	CheckTimeout  time.Duration    // Default: DefaultCheckTimeout
	RecentResults int              // Default: 32
	Now           func() time.Time // Default: time.Now
}

// New creates a gate Runner.
func New(opts Options) *Runner {
	timeout := opts.CheckTimeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	capacity := opts.RecentResults
	if capacity <= 0 {
		capacity = defaultRecentResults
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		db:           opts.DB,
		feed:         opts.Feed,
		rpc:          opts.RPC,
		providers:    opts.Providers,
		lease:        opts.Lease,
		breaker:      opts.Breaker,
		agents:       opts.Agents,
		registry:     opts.Registry,
		logger:       logger,
		checkTimeout: timeout,
		now:          now,
		history:      newResultRing(capacity),
	}
}

// requiredChecks returns the set of check names whose failure blocks the
// gate in the given mode. Strict (real funds) additionally demands a live
// price feed and chain RPC; relaxed (paper trading) only needs the
// database and the lock.
func requiredChecks(mode domain.GateMode) map[string]bool {
	switch mode {
	case domain.GateModeStrict:
		return map[string]bool{
			domain.CheckDatabase:    true,
			domain.CheckPriceFeed:   true,
			domain.CheckChainRPC:    true,
			domain.CheckTradingLock: true,
		}
	default:
		return map[string]bool{
			domain.CheckDatabase:    true,
			domain.CheckTradingLock: true,
		}
	}
}

// Run executes all six checks and returns exactly one GateResult. Check
// failures never surface as errors; every failure becomes a fail or warn
// entry in the result and only a failed required check blocks the round.
func (r *Runner) Run(ctx context.Context, mode domain.GateMode) domain.GateResult {
	started := r.now().UTC()
	required := requiredChecks(mode)

	// The four network checks are independent remote calls.
	networkResults := make(chan domain.GateCheck, 4)
	networkChecks := []struct {
		name string
		fn   func(context.Context) (string, error)
	}{
		{domain.CheckDatabase, r.checkDatabase},
		{domain.CheckPriceFeed, r.checkPriceFeed},
		{domain.CheckChainRPC, r.checkChainRPC},
		{domain.CheckProviders, r.checkProviders},
	}
	for _, c := range networkChecks {
		go func(name string, fn func(context.Context) (string, error)) {
			networkResults <- r.runNetworkCheck(ctx, name, fn)
		}(c.name, c.fn)
	}

	byName := make(map[string]domain.GateCheck, 6)
	for i := 0; i < len(networkChecks); i++ {
		c := <-networkResults
		byName[c.Name] = c
	}

	// Lock and breaker state are local reads and run after.
	byName[domain.CheckTradingLock] = r.checkTradingLock(ctx)
	byName[domain.CheckCircuitState] = r.checkCircuitBreakers(ctx)

	// Fixed presentation order, independent of completion order.
	order := []string{
		domain.CheckDatabase, domain.CheckPriceFeed, domain.CheckChainRPC,
		domain.CheckProviders, domain.CheckTradingLock, domain.CheckCircuitState,
	}
	checks := make([]domain.GateCheck, 0, len(order))
	for _, name := range order {
		c := byName[name]
		c.Required = required[name]
		checks = append(checks, c)
	}

	result := domain.GateResult{
		Mode:      mode,
		Checks:    checks,
		StartedAt: started,
		Duration:  r.now().UTC().Sub(started),
	}

	var blocking []string
	for _, c := range checks {
		if c.Required && c.Status == domain.CheckFail {
			blocking = append(blocking, c.Name)
		}
	}
	result.Proceed = len(blocking) == 0
	if !result.Proceed {
		result.BlockReason = "required checks failed: " + strings.Join(blocking, ", ")
	}

	for _, c := range checks {
		r.logger.Printf("gate check: name=%s status=%s required=%t latency=%s message=%q",
			c.Name, c.Status, c.Required, c.Latency.Round(time.Millisecond), c.Message)
	}
	r.logger.Printf("gate result: mode=%s proceed=%t duration=%s",
		mode, result.Proceed, result.Duration.Round(time.Millisecond))

	if r.registry != nil {
		r.registry.AddGateChecks(len(checks))
		r.registry.IncGateRun(result.Proceed)
		r.registry.ObserveLatency(metrics.OpGate, result.Duration)
	}

	r.history.push(RunRecord{
		Timestamp:    started,
		Proceed:      result.Proceed,
		Mode:         mode,
		Duration:     result.Duration,
		FailedChecks: result.FailedChecks(),
	})

	return result
}

// Recent returns up to n retained run records, oldest first.
func (r *Runner) Recent(n int) []RunRecord {
	return r.history.recent(n)
}

// runNetworkCheck races fn against the per-check timeout. The timer wins
// even if fn ignores context cancellation, so a stuck dependency cannot
// stall the gate.
func (r *Runner) runNetworkCheck(ctx context.Context, name string, fn func(context.Context) (string, error)) domain.GateCheck {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, r.checkTimeout)
	defer cancel()

	type outcome struct {
		message string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		msg, err := fn(checkCtx)
		done <- outcome{message: msg, err: err}
	}()

	select {
	case o := <-done:
		latency := time.Since(start)
		if o.err != nil {
			return domain.GateCheck{Name: name, Status: domain.CheckFail, Latency: latency, Message: o.err.Error()}
		}
		return domain.GateCheck{Name: name, Status: domain.CheckPass, Latency: latency, Message: o.message}
	case <-checkCtx.Done():
		return domain.GateCheck{
			Name:    name,
			Status:  domain.CheckFail,
			Latency: time.Since(start),
			Message: fmt.Sprintf("timed out after %s", r.checkTimeout),
		}
	}
}

func (r *Runner) checkDatabase(ctx context.Context) (string, error) {
	if r.db == nil {
		return "", fmt.Errorf("no database configured")
	}
	if err := r.db.Ping(ctx); err != nil {
		return "", fmt.Errorf("ping failed: %w", err)
	}
	return "reachable", nil
}

// checkPriceFeed asks for the USDC price, which every deployment has.
func (r *Runner) checkPriceFeed(ctx context.Context) (string, error) {
	if r.feed == nil {
		return "", fmt.Errorf("no price feed configured")
	}
	ref, err := r.feed.Price(ctx, domain.USDCMint)
	if err != nil {
		return "", fmt.Errorf("price lookup failed: %w", err)
	}
	return fmt.Sprintf("usdc=%.4f", ref.USDPrice), nil
}

func (r *Runner) checkChainRPC(ctx context.Context) (string, error) {
	if r.rpc == nil {
		return "", fmt.Errorf("no chain rpc configured")
	}
	slot, err := r.rpc.GetSlot(ctx)
	if err != nil {
		return "", fmt.Errorf("getSlot failed: %w", err)
	}
	return fmt.Sprintf("slot=%d", slot), nil
}

func (r *Runner) checkProviders(ctx context.Context) (string, error) {
	if r.providers == nil {
		return "", fmt.Errorf("no providers configured")
	}
	reachable, err := r.providers.AnyReachable(ctx)
	if err != nil {
		return "", err
	}
	return "reachable: " + strings.Join(reachable, ","), nil
}

// checkTradingLock fails when another round currently holds the lease.
func (r *Runner) checkTradingLock(ctx context.Context) domain.GateCheck {
	start := time.Now()
	check := domain.GateCheck{Name: domain.CheckTradingLock}

	if r.lease == nil {
		check.Status = domain.CheckFail
		check.Message = "no trading lock configured"
		check.Latency = time.Since(start)
		return check
	}

	rec, err := r.lease.Status(ctx)
	check.Latency = time.Since(start)
	switch {
	case err != nil:
		check.Status = domain.CheckFail
		check.Message = fmt.Sprintf("lock status failed: %v", err)
	case rec == nil || rec.ExpiredAt(r.now().UTC()):
		check.Status = domain.CheckPass
		check.Message = "available"
	default:
		check.Status = domain.CheckFail
		check.Message = fmt.Sprintf("held by %s until %s", rec.Holder, rec.ExpiresAt.Format(time.RFC3339))
	}
	return check
}

// checkCircuitBreakers warns when every agent in the roster is tripped:
// the round could start but no agent may trade.
func (r *Runner) checkCircuitBreakers(ctx context.Context) domain.GateCheck {
	start := time.Now()
	check := domain.GateCheck{Name: domain.CheckCircuitState}

	if r.breaker == nil {
		check.Status = domain.CheckSkip
		check.Message = "no circuit breaker configured"
		check.Latency = time.Since(start)
		return check
	}

	saturated, err := r.breaker.Saturated(ctx, r.agents)
	check.Latency = time.Since(start)
	switch {
	case err != nil:
		check.Status = domain.CheckFail
		check.Message = fmt.Sprintf("breaker status failed: %v", err)
	case saturated:
		check.Status = domain.CheckWarn
		check.Message = "all agents tripped for today"
	default:
		check.Status = domain.CheckPass
		check.Message = "capacity available"
	}
	return check
}
