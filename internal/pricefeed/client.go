package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moltapp-trading/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.jup.ag"
	DefaultTimeout = 15 * time.Second
)

const pricePath = "/price/v3"

// HTTPFeed implements Feed against the venue-independent price REST API.
type HTTPFeed struct {
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

// FeedOption configures HTTPFeed.
type FeedOption func(*HTTPFeed)

// WithBaseURL overrides the price API base URL.
func WithBaseURL(u string) FeedOption {
	return func(f *HTTPFeed) {
		f.baseURL = u
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) FeedOption {
	return func(f *HTTPFeed) {
		f.client = client
	}
}

// NewHTTPFeed creates a price feed client.
func NewHTTPFeed(apiKey string, opts ...FeedOption) *HTTPFeed {
	f := &HTTPFeed{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Compile-time interface check.
var _ Feed = (*HTTPFeed)(nil)

// priceEntry is the raw per-mint payload of the price API.
type priceEntry struct {
	USDPrice float64 `json:"usdPrice"`
	Price    string  `json:"price"` // legacy string field, fallback
}

// Price returns the latest USD price for one mint.
func (f *HTTPFeed) Price(ctx context.Context, mint string) (*domain.ReferencePrice, error) {
	prices, err := f.Prices(ctx, []string{mint})
	if err != nil {
		return nil, err
	}
	p, ok := prices[mint]
	if !ok {
		return nil, ErrUnavailable
	}
	return p, nil
}

// Prices returns USD prices for multiple mints in one request. Mints the
// feed does not know are absent from the result, not errors.
func (f *HTTPFeed) Prices(ctx context.Context, mints []string) (map[string]*domain.ReferencePrice, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+pricePath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price feed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read price feed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price feed status %d: %s", resp.StatusCode, body)
	}

	// The API wraps per-mint entries under "data"; some deployments return
	// the map at the top level. Accept both.
	var envelope struct {
		Data map[string]priceEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal price feed response: %w", err)
	}
	entries := envelope.Data
	if entries == nil {
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("unmarshal price feed response: %w", err)
		}
	}

	observed := f.now()
	result := make(map[string]*domain.ReferencePrice, len(entries))
	for mint, entry := range entries {
		price := entry.USDPrice
		if price == 0 && entry.Price != "" {
			if v, err := strconv.ParseFloat(entry.Price, 64); err == nil {
				price = v
			}
		}
		if price <= 0 {
			continue
		}
		result[mint] = &domain.ReferencePrice{
			Mint:       mint,
			USDPrice:   price,
			ObservedAt: observed,
		}
	}
	return result, nil
}
