// Package execution implements the hardened order pipeline:
// quote, slippage guard, sign, submit, with bounded retries. The pipeline
// resolves its retries internally and always returns one terminal Order;
// it never surfaces an error mid-retry.
package execution

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/metrics"
	"moltapp-trading/internal/pricefeed"
	"moltapp-trading/internal/slippage"
	"moltapp-trading/internal/storage"
	"moltapp-trading/internal/venue"
)

// DefaultMaxRetries bounds retries after the first submission attempt, so
// an order makes at most DefaultMaxRetries+1 attempts.
const DefaultMaxRetries = 2

// DefaultTimeoutRetryDelay is the fixed pause before the single blind
// retry after a venue timeout code.
const DefaultTimeoutRetryDelay = 2 * time.Second

// Signer signs an unsigned transaction payload. The result must be
// byte-identical to the input except for the injected signature.
type Signer interface {
	Sign(unsignedTx []byte, walletID string) ([]byte, error)
}

// Request describes one swap to execute.
type Request struct {
	AgentID string
	Side    domain.Side
	Symbol  string // tokenized stock symbol, e.g. "AAPLx"
	Amount  uint64 // base units of the input asset
	Taker   string // wallet address, also the signing identity
}

// Executor runs the pipeline. Construct once and share; Execute is safe
// for concurrent use across distinct orders.
type Executor struct {
	venue    venue.Client
	feed     pricefeed.Feed
	signer   Signer
	registry *metrics.Registry
	orders   storage.OrderStore
	archive  storage.OrderArchive
	logger   *log.Logger

	maxRetries        int
	backoffBase       time.Duration
	timeoutRetryDelay time.Duration
	maxDeviationPct   float64

	now    func() time.Time
	rand01 func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// Options contains configuration for creating an Executor.
type Options struct {
	Venue    venue.Client
	Feed     pricefeed.Feed
	Signer   Signer
	Registry *metrics.Registry
	Orders   storage.OrderStore   // optional; terminal orders are persisted when set
	Archive  storage.OrderArchive // optional; terminal orders are archived when set
	Logger   *log.Logger

	MaxRetries        int           // Default: DefaultMaxRetries
	BackoffBase       time.Duration // Default: DefaultBackoffBase
	TimeoutRetryDelay time.Duration // Default: DefaultTimeoutRetryDelay
	MaxDeviationPct   float64       // Default: slippage.DefaultMaxDeviationPct

	Now    func() time.Time // Default: time.Now
	Rand01 func() float64   // Default: rand.Float64
}

// New creates an Executor.
func New(opts Options) *Executor {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}

	timeoutRetryDelay := opts.TimeoutRetryDelay
	if timeoutRetryDelay <= 0 {
		timeoutRetryDelay = DefaultTimeoutRetryDelay
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	rand01 := opts.Rand01
	if rand01 == nil {
		rand01 = rand.Float64
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Executor{
		venue:             opts.Venue,
		feed:              opts.Feed,
		signer:            opts.Signer,
		registry:          opts.Registry,
		orders:            opts.Orders,
		archive:           opts.Archive,
		logger:            logger,
		maxRetries:        maxRetries,
		backoffBase:       backoffBase,
		timeoutRetryDelay: timeoutRetryDelay,
		maxDeviationPct:   opts.MaxDeviationPct,
		now:               now,
		rand01:            rand01,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Execute runs one swap through the pipeline and returns its terminal
// Order. The returned error is non-nil only for programmer errors (empty
// request); every venue or market failure is reported on the Order itself.
func (e *Executor) Execute(ctx context.Context, req Request) (*domain.Order, error) {
	if req.AgentID == "" || req.Taker == "" {
		return nil, fmt.Errorf("execute: agent and taker are required")
	}

	started := e.now().UTC()
	order := &domain.Order{
		OrderID:   uuid.NewString(),
		AgentID:   req.AgentID,
		Side:      req.Side,
		Symbol:    req.Symbol,
		Amount:    req.Amount,
		Taker:     req.Taker,
		CreatedAt: started,
	}

	stock, ok := domain.StockBySymbol(req.Symbol)
	if !ok {
		return e.reject(ctx, order, domain.ErrorKindValidation, domain.CodeStockNotFound,
			fmt.Sprintf("unknown stock symbol %q", req.Symbol)), nil
	}
	order.Mint = stock.Mint

	if req.Amount == 0 {
		return e.reject(ctx, order, domain.ErrorKindValidation, domain.CodeInvalidAmount,
			"amount must be positive"), nil
	}

	inMint, outMint := domain.USDCMint, stock.Mint
	inDecimals, outDecimals := domain.USDCDecimals, stock.Decimals
	if req.Side == domain.SideSell {
		inMint, outMint = stock.Mint, domain.USDCMint
		inDecimals, outDecimals = stock.Decimals, domain.USDCDecimals
	}

	// Step 1: quote.
	quoteStart := time.Now()
	quote, err := e.venue.GetOrder(ctx, venue.OrderRequest{
		InputMint:  inMint,
		OutputMint: outMint,
		Amount:     req.Amount,
		Taker:      req.Taker,
	})
	if e.registry != nil {
		e.registry.ObserveLatency(metrics.OpQuote, time.Since(quoteStart))
	}
	if err != nil {
		kind, code := domain.KindOf(err), domain.CodeOf(err)
		e.logger.Printf("quote failed: order=%s agent=%s symbol=%s code=%s err=%v",
			order.OrderID, order.AgentID, order.Symbol, code, err)
		return e.fail(ctx, order, kind, code), nil
	}
	order.Quote = quote

	// Step 2: independent reference price for the stock leg.
	var reference *domain.ReferencePrice
	if e.feed != nil {
		reference, err = e.feed.Price(ctx, stock.Mint)
		if err != nil {
			reference = nil
			if e.registry != nil {
				e.registry.IncPriceFeedError()
			}
			e.logger.Printf("reference price unavailable: order=%s mint=%s err=%v",
				order.OrderID, stock.Mint, err)
		}
	}

	// Step 3: slippage guard. A rejection here means no signing and no
	// submission ever happen for this order.
	verdict := slippage.Evaluate(slippage.Input{
		Side:            req.Side,
		InAmount:        quote.InAmount,
		OutAmount:       quote.OutAmount,
		InDecimals:      inDecimals,
		OutDecimals:     outDecimals,
		Reference:       reference,
		MaxDeviationPct: e.maxDeviationPct,
	})
	if !verdict.OK {
		if e.registry != nil {
			e.registry.IncSlippageRejection()
		}
		e.logger.Printf("slippage guard rejected: order=%s exec=%.4f deviation=%.2f%% reason=%s",
			order.OrderID, verdict.ExecPrice, verdict.DeviationPct, verdict.Reason)
		return e.reject(ctx, order, domain.ErrorKindMarket, domain.CodeExcessiveSlippage, verdict.Reason), nil
	}
	if verdict.NoReference {
		e.logger.Printf("slippage guard skipped, no reference price: order=%s mint=%s",
			order.OrderID, stock.Mint)
	}

	// Step 4: sign. The payload leaves here byte-identical except for the
	// injected signature.
	signedTx, err := e.signer.Sign(quote.Transaction, req.Taker)
	if err != nil {
		e.logger.Printf("signing failed: order=%s err=%v", order.OrderID, err)
		return e.fail(ctx, order, domain.ErrorKindValidation, domain.CodeSigningFailed), nil
	}

	// Step 5: submit with bounded retries.
	e.submit(ctx, order, signedTx)

	if e.registry != nil {
		e.registry.ObserveLatency(metrics.OpOrder, e.now().UTC().Sub(started))
	}
	return order, nil
}

// submit drives the attempt loop. Attempts are strictly sequential; the
// next one starts only after the previous outcome is known.
func (e *Executor) submit(ctx context.Context, order *domain.Order, signedTx []byte) {
	retriesUsed := 0
	timeoutRetryUsed := false

	for {
		attemptStart := e.now().UTC()
		execStart := time.Now()
		result, err := e.venue.Execute(ctx, signedTx, order.Quote.RequestID)
		elapsed := time.Since(execStart)

		attempt := domain.ExecutionAttempt{
			AttemptNumber: len(order.Attempts) + 1,
			StartedAt:     attemptStart,
			Duration:      elapsed,
		}
		if e.registry != nil {
			e.registry.ObserveLatency(metrics.OpExecute, elapsed)
			e.registry.IncAttempt()
			if attempt.AttemptNumber > 1 {
				e.registry.IncRetry()
			}
		}

		if err == nil && result != nil && result.Status == venue.ExecuteStatusSuccess {
			attempt.Outcome = domain.AttemptSuccess
			attempt.Signature = result.Signature
			order.Attempts = append(order.Attempts, attempt)
			order.Signature = result.Signature
			e.finalize(ctx, order, domain.OrderStatusConfirmed, domain.ErrorKindNone, "")
			return
		}

		kind, code := domain.KindOf(err), domain.CodeOf(err)
		attempt.ErrorCode = code
		if err != nil {
			attempt.ErrorMessage = err.Error()
		}

		// Decide the next action before appending, so the outcome label is
		// accurate.
		var retryDelay time.Duration
		retry := false
		switch {
		case code == domain.CodeVenueTimeout && !timeoutRetryUsed && len(order.Attempts) < e.maxRetries:
			// The venue's backend stalled; the trade may have landed.
			// Execute is idempotent on requestId, so exactly one blind
			// retry after a fixed delay is safe. A second timeout is
			// terminal.
			timeoutRetryUsed = true
			retry = true
			retryDelay = e.timeoutRetryDelay
		case kind.Retryable() && code != domain.CodeVenueTimeout && retriesUsed < e.maxRetries && len(order.Attempts) < e.maxRetries:
			retry = true
			retryDelay = backoffDelay(e.backoffBase, retriesUsed, e.rand01)
			retriesUsed++
		}

		if retry {
			attempt.Outcome = domain.AttemptRetryableError
		} else {
			attempt.Outcome = domain.AttemptFatalError
		}
		order.Attempts = append(order.Attempts, attempt)

		e.logger.Printf("execute attempt failed: order=%s attempt=%d code=%s retry=%t err=%v",
			order.OrderID, attempt.AttemptNumber, code, retry, err)

		if !retry {
			e.finalize(ctx, order, domain.OrderStatusFailed, kind, code)
			return
		}

		if err := e.sleep(ctx, retryDelay); err != nil {
			e.finalize(ctx, order, domain.OrderStatusFailed, domain.ErrorKindTransient, domain.CodeNetworkError)
			return
		}
	}
}

// reject finalizes an order that never reached submission.
func (e *Executor) reject(ctx context.Context, order *domain.Order, kind domain.ErrorKind, code, message string) *domain.Order {
	e.logger.Printf("order rejected: order=%s agent=%s code=%s message=%s",
		order.OrderID, order.AgentID, code, message)
	e.finalize(ctx, order, domain.OrderStatusRejected, kind, code)
	return order
}

// fail finalizes an order whose infrastructure path broke before or during
// submission setup.
func (e *Executor) fail(ctx context.Context, order *domain.Order, kind domain.ErrorKind, code string) *domain.Order {
	e.finalize(ctx, order, domain.OrderStatusFailed, kind, code)
	return order
}

// finalize stamps the terminal state exactly once, updates counters and
// persists the order. Persistence failures are logged, never propagated:
// the trade outcome is already decided.
func (e *Executor) finalize(ctx context.Context, order *domain.Order, status domain.OrderStatus, kind domain.ErrorKind, code string) {
	order.FinalStatus = status
	order.FailureKind = kind
	order.FailureCode = code
	order.CompletedAt = e.now().UTC()

	if e.registry != nil {
		switch status {
		case domain.OrderStatusConfirmed:
			e.registry.IncOrderConfirmed()
		case domain.OrderStatusRejected:
			e.registry.IncOrderRejected()
		default:
			e.registry.IncOrderFailed()
		}
	}

	e.logger.Printf("order terminal: order=%s agent=%s side=%s symbol=%s status=%s code=%s attempts=%d",
		order.OrderID, order.AgentID, order.Side, order.Symbol, status, code, len(order.Attempts))

	if e.orders != nil {
		if err := e.orders.Insert(ctx, order); err != nil {
			e.logger.Printf("persist order failed: order=%s err=%v", order.OrderID, err)
		}
	}
	if e.archive != nil {
		if err := e.archive.Append(ctx, []*domain.Order{order}); err != nil {
			e.logger.Printf("archive order failed: order=%s err=%v", order.OrderID, err)
		}
	}
}
