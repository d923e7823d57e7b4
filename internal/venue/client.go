package venue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"moltapp-trading/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL        = "https://api.jup.ag"
	DefaultOrderTimeout   = 30 * time.Second
	DefaultExecuteTimeout = 60 * time.Second
)

// API paths.
const (
	orderPath   = "/ultra/v1/order"
	executePath = "/ultra/v1/execute"
)

// HTTPClient implements Client against the venue's REST API. It performs
// exactly one HTTP round-trip per call; retry policy belongs to the
// execution pipeline, not here.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

// Option configures HTTPClient.
type Option func(*HTTPClient)

// WithBaseURL overrides the venue base URL.
func WithBaseURL(u string) Option {
	return func(c *HTTPClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a venue client.
func NewHTTPClient(apiKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultExecuteTimeout},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// GetOrder requests a quote and unsigned transaction from the venue.
func (c *HTTPClient) GetOrder(ctx context.Context, req OrderRequest) (*domain.Quote, error) {
	if req.Amount == 0 {
		return nil, domain.NewTradeError(domain.ErrorKindValidation, domain.CodeInvalidAmount,
			fmt.Errorf("order amount must be positive"))
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("taker", req.Taker)

	var raw orderResponse
	if err := c.doJSON(ctx, http.MethodGet, orderPath+"?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}

	if raw.Transaction == "" {
		return nil, domain.NewTradeError(domain.ErrorKindFatalVenue, domain.CodeStockNotFound,
			fmt.Errorf("venue returned no transaction: %s", raw.ErrorMessage))
	}

	txBytes, err := base64.StdEncoding.DecodeString(raw.Transaction)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrorKindFatalVenue, domain.CodeNetworkError,
			fmt.Errorf("decode venue transaction: %w", err))
	}

	inAmount, err := strconv.ParseUint(raw.InAmount, 10, 64)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrorKindFatalVenue, domain.CodeNetworkError,
			fmt.Errorf("parse inAmount %q: %w", raw.InAmount, err))
	}
	outAmount, err := strconv.ParseUint(raw.OutAmount, 10, 64)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrorKindFatalVenue, domain.CodeNetworkError,
			fmt.Errorf("parse outAmount %q: %w", raw.OutAmount, err))
	}

	return &domain.Quote{
		RequestID:   raw.RequestID,
		InputMint:   req.InputMint,
		OutputMint:  req.OutputMint,
		InAmount:    inAmount,
		OutAmount:   outAmount,
		SlippageBps: raw.SlippageBps,
		SwapType:    raw.SwapType,
		Transaction: txBytes,
		ReceivedAt:  c.now(),
	}, nil
}

// Execute submits a signed transaction. A Failed result is returned as a
// classified error; the raw result accompanies it for attempt records.
func (c *HTTPClient) Execute(ctx context.Context, signedTx []byte, requestID string) (*ExecuteResult, error) {
	payload := map[string]string{
		"signedTransaction": base64.StdEncoding.EncodeToString(signedTx),
		"requestId":         requestID,
	}

	var result ExecuteResult
	if err := c.doJSON(ctx, http.MethodPost, executePath, payload, &result); err != nil {
		return nil, err
	}

	if result.Status != ExecuteStatusSuccess {
		return &result, classifyExecuteFailure(&result)
	}
	return &result, nil
}

// classifyExecuteFailure maps a Failed execute result onto the error
// taxonomy. The timeout code is distinguished so the pipeline can apply its
// single-blind-retry rule.
func classifyExecuteFailure(res *ExecuteResult) error {
	cause := fmt.Errorf("venue execute failed: code=%d %s", res.Code, res.Error)
	switch res.Code {
	case CodeTimeout:
		return domain.NewTradeError(domain.ErrorKindTransient, domain.CodeVenueTimeout, cause)
	case CodeSlippageExceeded:
		return domain.NewTradeError(domain.ErrorKindMarket, domain.CodeExcessiveSlippage, cause)
	case CodeInsufficientBalance:
		return domain.NewTradeError(domain.ErrorKindValidation, domain.CodeInsufficientBalance, cause)
	case CodeInvalidTransaction:
		return domain.NewTradeError(domain.ErrorKindFatalVenue, "invalid_transaction", cause)
	default:
		return domain.NewTradeError(domain.ErrorKindFatalVenue, fmt.Sprintf("venue_code_%d", res.Code), cause)
	}
}

// doJSON performs one HTTP round-trip and decodes the response. Transport
// failures and 5xx map to transient errors; 4xx map to fatal venue errors.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewTradeError(domain.ErrorKindTransient, domain.CodeNetworkError,
			fmt.Errorf("venue request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewTradeError(domain.ErrorKindTransient, domain.CodeNetworkError,
			fmt.Errorf("read venue response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return domain.NewTradeError(domain.ErrorKindTransient, domain.CodeNetworkError,
			fmt.Errorf("venue status %d: %s", resp.StatusCode, truncate(respBody)))
	case resp.StatusCode == http.StatusBadRequest:
		return domain.NewTradeError(domain.ErrorKindValidation, domain.CodeInvalidAmount,
			fmt.Errorf("venue status 400: %s", truncate(respBody)))
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewTradeError(domain.ErrorKindValidation, domain.CodeStockNotFound,
			fmt.Errorf("venue status 404: %s", truncate(respBody)))
	case resp.StatusCode != http.StatusOK:
		return domain.NewTradeError(domain.ErrorKindFatalVenue, fmt.Sprintf("venue_http_%d", resp.StatusCode),
			fmt.Errorf("venue status %d: %s", resp.StatusCode, truncate(respBody)))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return domain.NewTradeError(domain.ErrorKindTransient, domain.CodeNetworkError,
				fmt.Errorf("unmarshal venue response: %w", err))
		}
	}
	return nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
