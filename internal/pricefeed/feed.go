// Package pricefeed provides independent USD reference prices. They are
// used only to sanity-check venue quotes, never to execute.
package pricefeed

import (
	"context"
	"errors"

	"moltapp-trading/internal/domain"
)

// ErrUnavailable is returned when no price is known for a mint. Callers
// must treat this as "cannot check", not as a zero price.
var ErrUnavailable = errors.New("reference price unavailable")

// Feed returns the latest USD reference price for a mint.
type Feed interface {
	Price(ctx context.Context, mint string) (*domain.ReferencePrice, error)
}
