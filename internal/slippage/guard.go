// Package slippage validates a venue quote against an independent reference
// price before anything is signed or submitted.
package slippage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"moltapp-trading/internal/domain"
)

// DefaultMaxDeviationPct is the default tolerated deviation from the
// reference price, in percent.
const DefaultMaxDeviationPct = 5.0

// Input carries everything needed to evaluate one quote. InDecimals and
// OutDecimals are the decimal precisions of the quote's input and output
// assets.
type Input struct {
	Side            domain.Side
	InAmount        uint64
	OutAmount       uint64
	InDecimals      int
	OutDecimals     int
	Reference       *domain.ReferencePrice // nil when the feed is unavailable
	MaxDeviationPct float64                // <=0 means DefaultMaxDeviationPct
}

// Result is the guard's verdict. DeviationPct is normalized so that a
// positive value always means "worse for the trader": paying above reference
// on a buy, receiving below reference on a sell.
type Result struct {
	OK           bool
	ExecPrice    float64 // implied USD price per output/input token
	DeviationPct float64
	NoReference  bool // reference price unavailable; trade allowed unchecked
	Reason       string
}

// Evaluate computes the implied execution price of a quote and compares it
// to the reference price. It is pure and performs no I/O.
func Evaluate(in Input) Result {
	maxPct := in.MaxDeviationPct
	if maxPct <= 0 {
		maxPct = DefaultMaxDeviationPct
	}

	if in.InAmount == 0 || in.OutAmount == 0 {
		return Result{
			OK:     false,
			Reason: fmt.Sprintf("degenerate quote amounts: in=%d out=%d", in.InAmount, in.OutAmount),
		}
	}

	execPrice := impliedPrice(in)
	execFloat, _ := execPrice.Float64()

	// Fail-open when the independent feed is down: the caller sees the
	// warning flag and decides policy. Refusing all trades on every brief
	// feed outage is the alternative, and the configured default is not to.
	if in.Reference == nil || in.Reference.USDPrice <= 0 {
		return Result{
			OK:          true,
			ExecPrice:   execFloat,
			NoReference: true,
			Reason:      "reference price unavailable, slippage unchecked",
		}
	}

	ref := decimal.NewFromFloat(in.Reference.USDPrice)
	deviation := execPrice.Sub(ref).Div(ref).Mul(decimal.NewFromInt(100))
	if in.Side == domain.SideSell {
		// Receiving less than reference is the bad direction on a sell.
		deviation = deviation.Neg()
	}
	devFloat, _ := deviation.Float64()

	if deviation.GreaterThanOrEqual(decimal.NewFromFloat(maxPct)) {
		return Result{
			OK:           false,
			ExecPrice:    execFloat,
			DeviationPct: devFloat,
			Reason: fmt.Sprintf("implied price %s deviates %.2f%% from reference %.6f (max %.2f%%)",
				execPrice.StringFixed(6), devFloat, in.Reference.USDPrice, maxPct),
		}
	}

	return Result{OK: true, ExecPrice: execFloat, DeviationPct: devFloat}
}

// impliedPrice returns the execution price in USD per traded token,
// normalized by asset decimal precision. For a buy the input is the USD-side
// asset, so price = in/out; for a sell the quote is inverted.
func impliedPrice(in Input) decimal.Decimal {
	inAmt := decimal.NewFromUint64(in.InAmount).Shift(int32(-in.InDecimals))
	outAmt := decimal.NewFromUint64(in.OutAmount).Shift(int32(-in.OutDecimals))
	if in.Side == domain.SideSell {
		return outAmt.Div(inAmt)
	}
	return inAmt.Div(outAmt)
}
