package domain

import (
	"errors"
	"fmt"
)

// ErrorKind partitions trade failures so callers can distinguish bad input,
// market conditions, infrastructure trouble, contention and hard venue
// rejections. Only ErrorKindTransient is ever retried.
type ErrorKind string

// Error kinds.
const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindValidation ErrorKind = "validation"       // bad input, never retried
	ErrorKindMarket     ErrorKind = "market_condition" // excessive slippage, never retried
	ErrorKindTransient  ErrorKind = "transient_infra"  // timeouts, 5xx, network; retried with backoff
	ErrorKindContention ErrorKind = "resource_contention"
	ErrorKindFatalVenue ErrorKind = "fatal_venue" // 4xx rejection, never retried
)

// Retryable reports whether failures of this kind may be retried.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransient
}

// Well-known failure codes surfaced on Orders and attempts.
const (
	CodeStockNotFound       = "stock_not_found"
	CodeInvalidAmount       = "invalid_amount"
	CodeInsufficientBalance = "insufficient_balance"
	CodeExcessiveSlippage   = "excessive_slippage"
	CodeVenueTimeout        = "venue_timeout"
	CodeSigningFailed       = "signing_failed"
	CodeNetworkError        = "network_error"
	CodeLockHeld            = "lock_held"
	CodeBreakerTriggered    = "breaker_triggered"
)

// TradeError carries an ErrorKind and a stable code alongside the cause.
type TradeError struct {
	Kind ErrorKind
	Code string
	Err  error
}

// Error implements the error interface.
func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Code, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Code, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *TradeError) Unwrap() error { return e.Err }

// NewTradeError builds a TradeError.
func NewTradeError(kind ErrorKind, code string, err error) *TradeError {
	return &TradeError{Kind: kind, Code: code, Err: err}
}

// KindOf extracts the ErrorKind from err, defaulting unclassified errors
// to ErrorKindTransient so unknown infrastructure failures stay retryable.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrorKindTransient
}

// CodeOf extracts the stable failure code from err, if any.
func CodeOf(err error) string {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeNetworkError
}
