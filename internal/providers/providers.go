// Package providers probes the reachability of the external reasoning
// providers the agents depend on. It never performs inference; any HTTP
// response at all, including 401/404, proves the endpoint is reachable.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Provider identifies one reasoning provider endpoint.
type Provider struct {
	Name    string
	PingURL string
}

// DefaultProviders covers the providers the agents are normally
// configured with.
var DefaultProviders = []Provider{
	{Name: "anthropic", PingURL: "https://api.anthropic.com/v1/models"},
	{Name: "openai", PingURL: "https://api.openai.com/v1/models"},
}

// defaultPingTimeout bounds a single provider probe.
const defaultPingTimeout = 5 * time.Second

// Checker probes a set of providers.
type Checker struct {
	providers  []Provider
	httpClient *http.Client
}

// NewChecker creates a Checker over the given providers. A nil or empty
// list falls back to DefaultProviders.
func NewChecker(providers []Provider, httpClient *http.Client) *Checker {
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultPingTimeout}
	}
	return &Checker{providers: providers, httpClient: httpClient}
}

// AnyReachable probes all providers concurrently and returns the names of
// the reachable ones. An error is returned only when none responded.
func (c *Checker) AnyReachable(ctx context.Context) ([]string, error) {
	type result struct {
		name string
		err  error
	}

	results := make(chan result, len(c.providers))
	var wg sync.WaitGroup
	for _, p := range c.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			results <- result{name: p.Name, err: c.ping(ctx, p)}
		}(p)
	}
	wg.Wait()
	close(results)

	var reachable []string
	var failures []string
	for r := range results {
		if r.err == nil {
			reachable = append(reachable, r.name)
		} else {
			failures = append(failures, fmt.Sprintf("%s: %v", r.name, r.err))
		}
	}

	if len(reachable) == 0 {
		return nil, fmt.Errorf("no reasoning provider reachable: %s", strings.Join(failures, "; "))
	}
	return reachable, nil
}

// ping issues one GET against the provider. The response body is
// discarded; the status code is irrelevant.
func (c *Checker) ping(ctx context.Context, p Provider) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.PingURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
