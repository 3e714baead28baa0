package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/crewline/crewline/internal/tlsutil"
)

// MarketDataConfig configures the HTTP market-data providers.
type MarketDataConfig struct {
	BaseURL string        // API base URL, e.g. "https://marketdata.example.com"
	APIKey  string        // Sent as X-Api-Key when non-empty
	Timeout time.Duration // HTTP client timeout (default 10s)
	Client  *http.Client  // Optional custom client
}

func (c MarketDataConfig) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return tlsutil.SecureHTTPClient(timeout)
}

// HTTPQuoteProvider fetches quotes from a JSON HTTP endpoint:
// GET {base}/v1/quote?symbol=...&exchange=...
type HTTPQuoteProvider struct {
	config MarketDataConfig
	client *http.Client
}

// NewHTTPQuoteProvider creates a quote provider for the given endpoint.
func NewHTTPQuoteProvider(config MarketDataConfig) (*HTTPQuoteProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("market data base URL is required")
	}
	return &HTTPQuoteProvider{
		config: config,
		client: config.httpClient(),
	}, nil
}

func (p *HTTPQuoteProvider) Name() string { return "http-quotes" }

func (p *HTTPQuoteProvider) Quote(ctx context.Context, symbol, exchange string) (*Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	if exchange != "" {
		q.Set("exchange", exchange)
	}

	var quote Quote
	if err := getJSON(ctx, p.client, p.config.BaseURL+"/v1/quote?"+q.Encode(), p.config.APIKey, &quote); err != nil {
		return nil, err
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}
	return &quote, nil
}

// HTTPNewsProvider fetches headlines from a JSON HTTP endpoint:
// GET {base}/v1/news?query=...&limit=...&days=...
type HTTPNewsProvider struct {
	config MarketDataConfig
	client *http.Client
}

// NewHTTPNewsProvider creates a news provider for the given endpoint.
func NewHTTPNewsProvider(config MarketDataConfig) (*HTTPNewsProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("market data base URL is required")
	}
	return &HTTPNewsProvider{
		config: config,
		client: config.httpClient(),
	}, nil
}

func (p *HTTPNewsProvider) Name() string { return "http-news" }

func (p *HTTPNewsProvider) Headlines(ctx context.Context, query string, opts NewsOptions) ([]NewsItem, error) {
	q := url.Values{}
	q.Set("query", query)
	if opts.MaxItems > 0 {
		q.Set("limit", strconv.Itoa(opts.MaxItems))
	}
	if opts.Days > 0 {
		q.Set("days", strconv.Itoa(opts.Days))
	}

	var payload struct {
		Items []NewsItem `json:"items"`
	}
	if err := getJSON(ctx, p.client, p.config.BaseURL+"/v1/news?"+q.Encode(), p.config.APIKey, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// getJSON issues a GET request and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, rawURL, apiKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
