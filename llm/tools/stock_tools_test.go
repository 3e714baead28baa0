package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewline/crewline/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeQuoteProvider returns a fixed quote without touching the network.
type fakeQuoteProvider struct {
	quote *Quote
	err   error
}

func (f *fakeQuoteProvider) Quote(ctx context.Context, symbol, exchange string) (*Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	q := *f.quote
	q.Symbol = symbol
	return &q, nil
}

func (f *fakeQuoteProvider) Name() string { return "fake-quotes" }

type fakeNewsProvider struct {
	items []NewsItem
	err   error
	gotQ  string
	gotO  NewsOptions
}

func (f *fakeNewsProvider) Headlines(ctx context.Context, query string, opts NewsOptions) ([]NewsItem, error) {
	f.gotQ = query
	f.gotO = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeNewsProvider) Name() string { return "fake-news" }

func TestStockPriceTool(t *testing.T) {
	cfg := DefaultStockPriceToolConfig()
	cfg.Provider = &fakeQuoteProvider{quote: &Quote{Price: 2950.40, Currency: "INR"}}

	fn, meta := NewStockPriceTool(cfg, zap.NewNop())
	assert.Equal(t, "stock_price", meta.Schema.Name)
	assert.NotEmpty(t, meta.Schema.Parameters)

	out, err := fn(context.Background(), json.RawMessage(`{"symbol":"RELIANCE","exchange":"NSE"}`))
	require.NoError(t, err)

	var resp stockPriceResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "RELIANCE", resp.Quote.Symbol)
	assert.InDelta(t, 2950.40, resp.Quote.Price, 0.001)
	assert.Equal(t, "fake-quotes", resp.Provider)
}

func TestStockPriceTool_Validation(t *testing.T) {
	cfg := DefaultStockPriceToolConfig()
	cfg.Provider = &fakeQuoteProvider{quote: &Quote{Price: 1}}
	fn, _ := NewStockPriceTool(cfg, zap.NewNop())

	_, err := fn(context.Background(), json.RawMessage(`{}`))
	assert.ErrorContains(t, err, "symbol is required")

	_, err = fn(context.Background(), json.RawMessage(`{broken`))
	assert.ErrorContains(t, err, "invalid stock_price arguments")

	unconfigured, _ := NewStockPriceTool(DefaultStockPriceToolConfig(), zap.NewNop())
	_, err = unconfigured(context.Background(), json.RawMessage(`{"symbol":"TCS"}`))
	assert.ErrorContains(t, err, "not configured")
}

func TestStockNewsTool(t *testing.T) {
	provider := &fakeNewsProvider{items: []NewsItem{
		{Title: "Q1 results beat estimates", Source: "wire"},
		{Title: "New refinery announced", Source: "wire"},
	}}
	cfg := DefaultStockNewsToolConfig()
	cfg.Provider = provider

	fn, meta := NewStockNewsTool(cfg, zap.NewNop())
	assert.Equal(t, "stock_news", meta.Schema.Name)

	out, err := fn(context.Background(), json.RawMessage(`{"query":"RELIANCE","max_items":5,"days":3}`))
	require.NoError(t, err)

	var resp stockNewsResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, 2, resp.TotalCount)
	assert.Equal(t, "RELIANCE", provider.gotQ)
	assert.Equal(t, 5, provider.gotO.MaxItems, "args override defaults")
	assert.Equal(t, 3, provider.gotO.Days)
}

func TestStockNewsTool_ProviderError(t *testing.T) {
	cfg := DefaultStockNewsToolConfig()
	cfg.Provider = &fakeNewsProvider{err: errors.New("feed unavailable")}
	fn, _ := NewStockNewsTool(cfg, zap.NewNop())

	_, err := fn(context.Background(), json.RawMessage(`{"query":"RELIANCE"}`))
	assert.ErrorContains(t, err, "feed unavailable")
}

func TestStockTools_ErrorBecomesObservation(t *testing.T) {
	reg := NewDefaultRegistry(zap.NewNop())
	cfg := DefaultStockPriceToolConfig()
	cfg.Provider = &fakeQuoteProvider{err: errors.New("exchange closed")}
	require.NoError(t, RegisterStockPriceTool(reg, cfg, zap.NewNop()))

	exec := NewDefaultExecutor(reg, zap.NewNop())
	result := exec.ExecuteOne(context.Background(), llm.ToolCall{
		ID:        "c1",
		Name:      "stock_price",
		Arguments: json.RawMessage(`{"symbol":"RELIANCE"}`),
	})

	assert.Contains(t, result.Error, "exchange closed")
	msg := result.ToMessage()
	assert.Contains(t, msg.Content, "Error:")
}

func TestHTTPQuoteProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quote", r.URL.Path)
		assert.Equal(t, "RELIANCE", r.URL.Query().Get("symbol"))
		assert.Equal(t, "NSE", r.URL.Query().Get("exchange"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_ = json.NewEncoder(w).Encode(Quote{Symbol: "RELIANCE", Price: 2950.4, Currency: "INR"})
	}))
	defer srv.Close()

	p, err := NewHTTPQuoteProvider(MarketDataConfig{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	quote, err := p.Quote(context.Background(), "RELIANCE", "NSE")
	require.NoError(t, err)
	assert.InDelta(t, 2950.4, quote.Price, 0.001)
}

func TestHTTPNewsProvider_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewHTTPNewsProvider(MarketDataConfig{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	_, err = p.Headlines(context.Background(), "RELIANCE", DefaultNewsOptions())
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestNewHTTPProviders_RequireBaseURL(t *testing.T) {
	_, err := NewHTTPQuoteProvider(MarketDataConfig{})
	assert.Error(t, err)
	_, err = NewHTTPNewsProvider(MarketDataConfig{})
	assert.Error(t, err)
}
