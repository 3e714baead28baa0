package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewline/crewline/llm"
	"go.uber.org/zap"
)

// QuoteProvider defines the interface for market quote backends.
// Implementations can wrap Yahoo Finance, Alpha Vantage, NSE/BSE feeds, etc.
type QuoteProvider interface {
	// Quote returns the latest quote for a symbol.
	Quote(ctx context.Context, symbol, exchange string) (*Quote, error)
	// Name returns the provider name.
	Name() string
}

// Quote represents a single market quote.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Exchange      string    `json:"exchange,omitempty"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency,omitempty"`
	Change        float64   `json:"change,omitempty"`
	ChangePercent float64   `json:"change_percent,omitempty"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	PrevClose     float64   `json:"prev_close,omitempty"`
	Volume        int64     `json:"volume,omitempty"`
	AsOf          time.Time `json:"as_of,omitempty"`
}

// StockPriceToolConfig configures the stock price tool.
type StockPriceToolConfig struct {
	Provider  QuoteProvider    // Quote backend
	Timeout   time.Duration    // Per-lookup timeout
	RateLimit *RateLimitConfig // Rate limiting
}

// DefaultStockPriceToolConfig returns sensible defaults.
func DefaultStockPriceToolConfig() StockPriceToolConfig {
	return StockPriceToolConfig{
		Timeout: 10 * time.Second,
		RateLimit: &RateLimitConfig{
			MaxCalls: 60,
			Window:   time.Minute,
		},
	}
}

// stockPriceArgs defines the input arguments for the stock price tool.
type stockPriceArgs struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange,omitempty"`
}

// stockPriceResponse defines the output of the stock price tool.
type stockPriceResponse struct {
	Quote    *Quote `json:"quote"`
	Provider string `json:"provider"`
	Duration string `json:"duration"`
}

// NewStockPriceTool creates a ToolFunc that looks up the latest market
// quote for a stock symbol. Register it with a ToolRegistry to make it
// available to agents.
func NewStockPriceTool(config StockPriceToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params stockPriceArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid stock_price arguments: %w", err)
		}

		if params.Symbol == "" {
			return nil, fmt.Errorf("symbol is required")
		}

		if config.Provider == nil {
			return nil, fmt.Errorf("quote provider not configured")
		}

		start := time.Now()
		logger.Info("looking up quote",
			zap.String("symbol", params.Symbol),
			zap.String("exchange", params.Exchange))

		quote, err := config.Provider.Quote(ctx, params.Symbol, params.Exchange)
		if err != nil {
			logger.Warn("quote lookup failed", zap.String("symbol", params.Symbol), zap.Error(err))
			return nil, fmt.Errorf("quote lookup failed: %w", err)
		}

		response := stockPriceResponse{
			Quote:    quote,
			Provider: config.Provider.Name(),
			Duration: time.Since(start).String(),
		}

		return json.Marshal(response)
	}

	metadata := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "stock_price",
			Description: "Look up the latest market price for a stock symbol. Returns price, change, day range, and volume.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"symbol": {
						"type": "string",
						"description": "The ticker symbol, e.g. 'RELIANCE' or 'AAPL'"
					},
					"exchange": {
						"type": "string",
						"description": "Exchange code, e.g. 'NSE', 'BSE', 'NASDAQ' (optional)"
					}
				},
				"required": ["symbol"]
			}`),
		},
		Timeout:     config.Timeout,
		RateLimit:   config.RateLimit,
		Description: "Market quote tool backed by a configurable quote provider.",
	}

	return fn, metadata
}

// RegisterStockPriceTool creates and registers the stock price tool.
func RegisterStockPriceTool(registry ToolRegistry, config StockPriceToolConfig, logger *zap.Logger) error {
	fn, metadata := NewStockPriceTool(config, logger)
	return registry.Register("stock_price", fn, metadata)
}
