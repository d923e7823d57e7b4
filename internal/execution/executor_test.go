package execution

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/metrics"
	"moltapp-trading/internal/storage/memory"
	"moltapp-trading/internal/venue"
)

const (
	testTaker = "4Nd1mYQJkT2hYyYS9AxR7P7q6eVCBLYHeTfVfS24ta2j"
	testAgent = "claude"
)

type fakeVenue struct {
	quote    *domain.Quote
	quoteErr error

	executeResults []executeOutcome
	executeCalls   int
	requestIDs     []string
}

type executeOutcome struct {
	result *venue.ExecuteResult
	err    error
}

func (v *fakeVenue) GetOrder(ctx context.Context, req venue.OrderRequest) (*domain.Quote, error) {
	if v.quoteErr != nil {
		return nil, v.quoteErr
	}
	return v.quote, nil
}

func (v *fakeVenue) Execute(ctx context.Context, signedTx []byte, requestID string) (*venue.ExecuteResult, error) {
	v.requestIDs = append(v.requestIDs, requestID)
	idx := v.executeCalls
	v.executeCalls++
	if idx >= len(v.executeResults) {
		idx = len(v.executeResults) - 1
	}
	o := v.executeResults[idx]
	return o.result, o.err
}

type fakeSigner struct {
	calls int
	err   error
}

func (s *fakeSigner) Sign(unsignedTx []byte, walletID string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	signed := append([]byte("signed:"), unsignedTx...)
	return signed, nil
}

type staticFeed struct {
	price float64
	err   error
}

func (f *staticFeed) Price(ctx context.Context, mint string) (*domain.ReferencePrice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ReferencePrice{Mint: mint, USDPrice: f.price, ObservedAt: time.Now()}, nil
}

// fairQuote implies a $100 execution price for a buy of one AAPLx share.
func fairQuote() *domain.Quote {
	return &domain.Quote{
		RequestID:   "req-123",
		InputMint:   domain.USDCMint,
		InAmount:    100_000_000, // 100 USDC at 6 decimals
		OutAmount:   100_000_000, // 1 share at 8 decimals
		SlippageBps: 50,
		Transaction: []byte{1, 2, 3, 4},
		ReceivedAt:  time.Now(),
	}
}

func success(sig string) executeOutcome {
	return executeOutcome{result: &venue.ExecuteResult{Status: venue.ExecuteStatusSuccess, Signature: sig}}
}

func timeoutFailure() executeOutcome {
	res := &venue.ExecuteResult{Status: venue.ExecuteStatusFailed, Code: venue.CodeTimeout, Error: "backend timed out"}
	err := domain.NewTradeError(domain.ErrorKindTransient, domain.CodeVenueTimeout, errors.New("backend timed out"))
	return executeOutcome{result: res, err: err}
}

func transientFailure() executeOutcome {
	err := domain.NewTradeError(domain.ErrorKindTransient, domain.CodeNetworkError, errors.New("connection reset"))
	return executeOutcome{err: err}
}

func fatalFailure() executeOutcome {
	res := &venue.ExecuteResult{Status: venue.ExecuteStatusFailed, Code: venue.CodeInsufficientBalance}
	err := domain.NewTradeError(domain.ErrorKindValidation, domain.CodeInsufficientBalance, errors.New("insufficient balance"))
	return executeOutcome{result: res, err: err}
}

type testHarness struct {
	executor *Executor
	venue    *fakeVenue
	signer   *fakeSigner
	registry *metrics.Registry
	orders   *memory.OrderStore
	slept    []time.Duration
}

func newHarness(t *testing.T, v *fakeVenue, refPrice float64) *testHarness {
	t.Helper()

	h := &testHarness{
		venue:    v,
		signer:   &fakeSigner{},
		registry: metrics.NewRegistry(10),
		orders:   memory.NewOrderStore(),
	}
	h.executor = New(Options{
		Venue:    v,
		Feed:     &staticFeed{price: refPrice},
		Signer:   h.signer,
		Registry: h.registry,
		Orders:   h.orders,
		Logger:   log.New(io.Discard, "", 0),
		Rand01:   func() float64 { return 0 },
	})
	h.executor.sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	return h
}

func buyRequest() Request {
	return Request{AgentID: testAgent, Side: domain.SideBuy, Symbol: "AAPLx", Amount: 100_000_000, Taker: testTaker}
}

func TestExecutor_ConfirmedFirstAttempt(t *testing.T) {
	h := newHarness(t, &fakeVenue{quote: fairQuote(), executeResults: []executeOutcome{success("sig-abc")}}, 100)

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusConfirmed, order.FinalStatus)
	assert.Equal(t, "sig-abc", order.Signature)
	require.Len(t, order.Attempts, 1)
	assert.Equal(t, domain.AttemptSuccess, order.Attempts[0].Outcome)
	assert.Equal(t, 1, h.signer.calls)
	assert.Equal(t, []string{"req-123"}, h.venue.requestIDs)

	// Terminal order is persisted.
	stored, err := h.orders.GetByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, stored.FinalStatus)

	counters := h.registry.Counters()
	assert.Equal(t, uint64(1), counters[metrics.CounterOrdersConfirmed])
	assert.Equal(t, uint64(1), counters[metrics.CounterAttempts])
	assert.Equal(t, uint64(0), counters[metrics.CounterRetries])
}

func TestExecutor_SlippageRejectionSkipsSigning(t *testing.T) {
	// Quote implies $105 against a $100 reference with a 5% max: the guard
	// rejects and neither the signer nor the execute endpoint is touched.
	quote := fairQuote()
	quote.InAmount = 105_000_000

	h := newHarness(t, &fakeVenue{quote: quote, executeResults: []executeOutcome{success("sig")}}, 100)

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusRejected, order.FinalStatus)
	assert.Equal(t, domain.ErrorKindMarket, order.FailureKind)
	assert.Equal(t, domain.CodeExcessiveSlippage, order.FailureCode)
	assert.Empty(t, order.Attempts)
	assert.Equal(t, 0, h.signer.calls, "guard rejection must happen before signing")
	assert.Equal(t, 0, h.venue.executeCalls)
	assert.Equal(t, uint64(1), h.registry.Counters()[metrics.CounterSlippageRejections])
}

func TestExecutor_TimeoutRetriedExactlyOnce(t *testing.T) {
	h := newHarness(t, &fakeVenue{
		quote:          fairQuote(),
		executeResults: []executeOutcome{timeoutFailure(), success("sig-retry")},
	}, 100)

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusConfirmed, order.FinalStatus)
	require.Len(t, order.Attempts, 2)
	assert.Equal(t, domain.AttemptRetryableError, order.Attempts[0].Outcome)
	assert.Equal(t, domain.CodeVenueTimeout, order.Attempts[0].ErrorCode)
	assert.Equal(t, domain.AttemptSuccess, order.Attempts[1].Outcome)

	// Blind retry reuses the same requestId and a fixed delay.
	assert.Equal(t, []string{"req-123", "req-123"}, h.venue.requestIDs)
	require.Len(t, h.slept, 1)
	assert.Equal(t, DefaultTimeoutRetryDelay, h.slept[0])

	assert.Equal(t, uint64(1), h.registry.Counters()[metrics.CounterRetries])
}

func TestExecutor_SecondTimeoutIsTerminal(t *testing.T) {
	h := newHarness(t, &fakeVenue{
		quote:          fairQuote(),
		executeResults: []executeOutcome{timeoutFailure(), timeoutFailure()},
	}, 100)

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFailed, order.FinalStatus)
	assert.Equal(t, domain.CodeVenueTimeout, order.FailureCode)
	assert.Len(t, order.Attempts, 2)
}

func TestExecutor_TransientExhaustsRetries(t *testing.T) {
	h := newHarness(t, &fakeVenue{
		quote:          fairQuote(),
		executeResults: []executeOutcome{transientFailure()},
	}, 100)

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFailed, order.FinalStatus)
	assert.Equal(t, domain.ErrorKindTransient, order.FailureKind)
	assert.Equal(t, domain.CodeNetworkError, order.FailureCode)

	// maxRetries=2 bounds the order at 3 attempts.
	assert.Len(t, order.Attempts, DefaultMaxRetries+1)
	last := order.LastAttempt()
	assert.Equal(t, domain.AttemptFatalError, last.Outcome)
	assert.Contains(t, last.ErrorMessage, "connection reset")

	// Two backoff sleeps with zero jitter: base, then 2*base.
	require.Len(t, h.slept, 2)
	assert.Equal(t, DefaultBackoffBase, h.slept[0])
	assert.Equal(t, 2*DefaultBackoffBase, h.slept[1])
}

func TestExecutor_FatalErrorNotRetried(t *testing.T) {
	h := newHarness(t, &fakeVenue{
		quote:          fairQuote(),
		executeResults: []executeOutcome{fatalFailure()},
	}, 100)

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFailed, order.FinalStatus)
	assert.Equal(t, domain.CodeInsufficientBalance, order.FailureCode)
	assert.Len(t, order.Attempts, 1)
	assert.Empty(t, h.slept)
}

func TestExecutor_UnknownSymbolRejected(t *testing.T) {
	h := newHarness(t, &fakeVenue{quote: fairQuote()}, 100)

	req := buyRequest()
	req.Symbol = "DOESNOTEXIST"
	order, err := h.executor.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusRejected, order.FinalStatus)
	assert.Equal(t, domain.CodeStockNotFound, order.FailureCode)
	assert.Equal(t, 0, h.venue.executeCalls)
	assert.Equal(t, 0, h.signer.calls)
}

func TestExecutor_ZeroAmountRejected(t *testing.T) {
	h := newHarness(t, &fakeVenue{quote: fairQuote()}, 100)

	req := buyRequest()
	req.Amount = 0
	order, err := h.executor.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusRejected, order.FinalStatus)
	assert.Equal(t, domain.CodeInvalidAmount, order.FailureCode)
}

func TestExecutor_QuoteFailureFailsOrder(t *testing.T) {
	h := newHarness(t, &fakeVenue{
		quoteErr: domain.NewTradeError(domain.ErrorKindTransient, domain.CodeNetworkError, errors.New("dial tcp: refused")),
	}, 100)

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFailed, order.FinalStatus)
	assert.Equal(t, domain.CodeNetworkError, order.FailureCode)
	assert.Equal(t, 0, h.signer.calls)
}

func TestExecutor_FeedOutageFailsOpen(t *testing.T) {
	h := newHarness(t, &fakeVenue{quote: fairQuote(), executeResults: []executeOutcome{success("sig")}}, 100)
	h.executor.feed = &staticFeed{err: errors.New("feed down")}

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	// No reference price: trade proceeds unchecked, outage is counted.
	assert.Equal(t, domain.OrderStatusConfirmed, order.FinalStatus)
	assert.Equal(t, uint64(1), h.registry.Counters()[metrics.CounterPriceFeedErrors])
}

func TestExecutor_SigningFailureFailsOrder(t *testing.T) {
	h := newHarness(t, &fakeVenue{quote: fairQuote()}, 100)
	h.signer.err = errors.New("wrong wallet")

	order, err := h.executor.Execute(context.Background(), buyRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFailed, order.FinalStatus)
	assert.Equal(t, domain.CodeSigningFailed, order.FailureCode)
	assert.Equal(t, 0, h.venue.executeCalls)
}

func TestExecutor_SellOrderConfirmed(t *testing.T) {
	// Selling one share for 99 USDC against a $100 reference is a 1%
	// shortfall, within tolerance.
	quote := &domain.Quote{
		RequestID:   "req-sell",
		InAmount:    100_000_000, // 1 share at 8 decimals
		OutAmount:   99_000_000,  // 99 USDC at 6 decimals
		Transaction: []byte{9, 9},
	}
	h := newHarness(t, &fakeVenue{quote: quote, executeResults: []executeOutcome{success("sig-sell")}}, 100)

	req := Request{AgentID: testAgent, Side: domain.SideSell, Symbol: "AAPLx", Amount: 100_000_000, Taker: testTaker}
	order, err := h.executor.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusConfirmed, order.FinalStatus)
}
