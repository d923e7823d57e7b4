// Package venue implements the liquidity-venue HTTP client: quote (order)
// and execute endpoints in the Jupiter Ultra API shape. Responses are parsed
// into typed structs at the boundary; nothing downstream touches raw JSON.
package venue

import (
	"context"

	"moltapp-trading/internal/domain"
)

// OrderRequest asks the venue for a swap quote plus an unsigned transaction.
type OrderRequest struct {
	InputMint  string
	OutputMint string
	Amount     uint64 // base units of InputMint
	Taker      string // wallet address that will sign
}

// orderResponse is the venue's raw quote payload.
type orderResponse struct {
	RequestID    string `json:"requestId"`
	Transaction  string `json:"transaction"` // base64, unsigned
	InAmount     string `json:"inAmount"`
	OutAmount    string `json:"outAmount"`
	SlippageBps  int    `json:"slippageBps"`
	SwapType     string `json:"swapType"`
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    int    `json:"errorCode"`
}

// ExecuteResult is the venue's response to a signed-transaction submission.
type ExecuteResult struct {
	Status    string `json:"status"` // "Success" or "Failed"
	Signature string `json:"signature"`
	Code      int    `json:"code"`
	Error     string `json:"error"`

	InputAmountResult  string `json:"inputAmountResult"`
	OutputAmountResult string `json:"outputAmountResult"`
}

// Execute response statuses.
const (
	ExecuteStatusSuccess = "Success"
	ExecuteStatusFailed  = "Failed"
)

// Venue failure codes carried in ExecuteResult.Code. CodeTimeout is the
// distinguished "venue backend stalled" code: the submission itself may have
// landed, and the venue is idempotent on requestId, so exactly one blind
// retry is safe.
const (
	CodeTimeout             = -2
	CodeSlippageExceeded    = -3
	CodeInsufficientBalance = -1000
	CodeInvalidTransaction  = -1001
)

// Client is the venue interface consumed by the execution pipeline.
type Client interface {
	// GetOrder requests a quote and unsigned transaction.
	GetOrder(ctx context.Context, req OrderRequest) (*domain.Quote, error)

	// Execute submits a signed transaction under the quote's requestId.
	Execute(ctx context.Context, signedTx []byte, requestID string) (*ExecuteResult, error)
}
