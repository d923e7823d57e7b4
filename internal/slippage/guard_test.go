package slippage

import (
	"math"
	"testing"
	"time"

	"moltapp-trading/internal/domain"
)

func ref(price float64) *domain.ReferencePrice {
	return &domain.ReferencePrice{Mint: "mint", USDPrice: price, ObservedAt: time.Now()}
}

func TestEvaluate_BuyWithinTolerance(t *testing.T) {
	// 100 USDC in, 1 token out → implied price $100, reference $100.
	res := Evaluate(Input{
		Side:        domain.SideBuy,
		InAmount:    100_000_000, // 100 USDC at 6 decimals
		OutAmount:   100_000_000, // 1 token at 8 decimals
		InDecimals:  6,
		OutDecimals: 8,
		Reference:   ref(100.0),
	})
	if !res.OK {
		t.Fatalf("expected OK, got rejection: %s", res.Reason)
	}
	if math.Abs(res.ExecPrice-100.0) > 1e-9 {
		t.Errorf("expected exec price 100, got %f", res.ExecPrice)
	}
	if math.Abs(res.DeviationPct) > 1e-9 {
		t.Errorf("expected zero deviation, got %f", res.DeviationPct)
	}
}

func TestEvaluate_BuyRejectedAboveMax(t *testing.T) {
	// Implied $105 against reference $100 with 5% max → rejected.
	res := Evaluate(Input{
		Side:            domain.SideBuy,
		InAmount:        105_000_000,
		OutAmount:       100_000_000,
		InDecimals:      6,
		OutDecimals:     8,
		Reference:       ref(100.0),
		MaxDeviationPct: 5.0,
	})
	if res.OK {
		t.Fatalf("expected rejection, got OK (deviation %f%%)", res.DeviationPct)
	}
	if math.Abs(res.DeviationPct-5.0) > 1e-6 {
		t.Errorf("expected deviation 5%%, got %f", res.DeviationPct)
	}
}

func TestEvaluate_BuyJustBelowMaxAllowed(t *testing.T) {
	// Deviation strictly below the limit is allowed; reaching it rejects.
	res := Evaluate(Input{
		Side:            domain.SideBuy,
		InAmount:        105_000_000,
		OutAmount:       100_000_000,
		InDecimals:      6,
		OutDecimals:     8,
		Reference:       ref(100.0),
		MaxDeviationPct: 5.000001,
	})
	if !res.OK {
		t.Errorf("expected OK at the boundary, got rejection: %s", res.Reason)
	}
}

func TestEvaluate_SellSignNormalization(t *testing.T) {
	// Selling 1 token for 94 USDC against a $100 reference: trader receives
	// 6% less than reference → positive deviation → rejected at the 5% max.
	res := Evaluate(Input{
		Side:        domain.SideSell,
		InAmount:    100_000_000, // 1 token at 8 decimals
		OutAmount:   94_000_000,  // 94 USDC at 6 decimals
		InDecimals:  8,
		OutDecimals: 6,
		Reference:   ref(100.0),
	})
	if res.OK {
		t.Fatalf("expected rejection for selling 6%% under reference")
	}
	if res.DeviationPct <= 0 {
		t.Errorf("worse-for-trader must be positive, got %f", res.DeviationPct)
	}
}

func TestEvaluate_SellAboveReferenceIsFavorable(t *testing.T) {
	// Receiving more than reference on a sell is favorable: negative
	// deviation, always allowed.
	res := Evaluate(Input{
		Side:        domain.SideSell,
		InAmount:    100_000_000,
		OutAmount:   110_000_000,
		InDecimals:  8,
		OutDecimals: 6,
		Reference:   ref(100.0),
	})
	if !res.OK {
		t.Fatalf("favorable sell rejected: %s", res.Reason)
	}
	if res.DeviationPct >= 0 {
		t.Errorf("expected negative deviation, got %f", res.DeviationPct)
	}
}

func TestEvaluate_DecimalPrecisionIndependence(t *testing.T) {
	// Same economic quote expressed at different precisions must produce
	// the same implied price.
	a := Evaluate(Input{Side: domain.SideBuy, InAmount: 50_000_000, OutAmount: 25_000_000, InDecimals: 6, OutDecimals: 8, Reference: ref(200.0)})
	b := Evaluate(Input{Side: domain.SideBuy, InAmount: 50_000_000_000, OutAmount: 250_000_000, InDecimals: 9, OutDecimals: 9, Reference: ref(200.0)})
	if math.Abs(a.ExecPrice-b.ExecPrice) > 1e-9 {
		t.Errorf("exec prices differ across precisions: %f vs %f", a.ExecPrice, b.ExecPrice)
	}
}

func TestEvaluate_NoReferenceFailsOpen(t *testing.T) {
	res := Evaluate(Input{
		Side:        domain.SideBuy,
		InAmount:    105_000_000,
		OutAmount:   100_000_000,
		InDecimals:  6,
		OutDecimals: 8,
		Reference:   nil,
	})
	if !res.OK {
		t.Fatalf("expected fail-open without reference, got rejection")
	}
	if !res.NoReference {
		t.Errorf("expected NoReference warning flag")
	}
}

func TestEvaluate_ZeroAmountsRejected(t *testing.T) {
	res := Evaluate(Input{Side: domain.SideBuy, InAmount: 0, OutAmount: 1, InDecimals: 6, OutDecimals: 8, Reference: ref(1)})
	if res.OK {
		t.Errorf("zero input amount must be rejected")
	}
	res = Evaluate(Input{Side: domain.SideBuy, InAmount: 1, OutAmount: 0, InDecimals: 6, OutDecimals: 8, Reference: ref(1)})
	if res.OK {
		t.Errorf("zero output amount must be rejected")
	}
}
