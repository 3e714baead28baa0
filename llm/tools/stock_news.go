package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewline/crewline/llm"
	"go.uber.org/zap"
)

// NewsProvider defines the interface for financial news backends.
type NewsProvider interface {
	// Headlines returns recent news items for a symbol or company name.
	Headlines(ctx context.Context, query string, opts NewsOptions) ([]NewsItem, error)
	// Name returns the provider name.
	Name() string
}

// NewsOptions configures a news lookup.
type NewsOptions struct {
	MaxItems int `json:"max_items"`      // Maximum headlines (default: 10)
	Days     int `json:"days,omitempty"` // Look-back window in days
}

// DefaultNewsOptions returns sensible defaults.
func DefaultNewsOptions() NewsOptions {
	return NewsOptions{
		MaxItems: 10,
		Days:     7,
	}
}

// NewsItem represents a single headline.
type NewsItem struct {
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// StockNewsToolConfig configures the stock news tool.
type StockNewsToolConfig struct {
	Provider    NewsProvider     // News backend
	DefaultOpts NewsOptions      // Default lookup options
	Timeout     time.Duration    // Per-lookup timeout
	RateLimit   *RateLimitConfig // Rate limiting
}

// DefaultStockNewsToolConfig returns sensible defaults.
func DefaultStockNewsToolConfig() StockNewsToolConfig {
	return StockNewsToolConfig{
		DefaultOpts: DefaultNewsOptions(),
		Timeout:     15 * time.Second,
		RateLimit: &RateLimitConfig{
			MaxCalls: 30,
			Window:   time.Minute,
		},
	}
}

// stockNewsArgs defines the input arguments for the stock news tool.
type stockNewsArgs struct {
	Query    string `json:"query"`
	MaxItems int    `json:"max_items,omitempty"`
	Days     int    `json:"days,omitempty"`
}

// stockNewsResponse defines the output of the stock news tool.
type stockNewsResponse struct {
	Query      string     `json:"query"`
	Items      []NewsItem `json:"items"`
	TotalCount int        `json:"total_count"`
	Provider   string     `json:"provider"`
	Duration   string     `json:"duration"`
}

// NewStockNewsTool creates a ToolFunc that fetches recent headlines for a
// stock symbol or company name.
func NewStockNewsTool(config StockNewsToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params stockNewsArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid stock_news arguments: %w", err)
		}

		if params.Query == "" {
			return nil, fmt.Errorf("query is required")
		}

		if config.Provider == nil {
			return nil, fmt.Errorf("news provider not configured")
		}

		opts := config.DefaultOpts
		if params.MaxItems > 0 {
			opts.MaxItems = params.MaxItems
		}
		if params.Days > 0 {
			opts.Days = params.Days
		}

		start := time.Now()
		logger.Info("fetching headlines",
			zap.String("query", params.Query),
			zap.Int("max_items", opts.MaxItems))

		items, err := config.Provider.Headlines(ctx, params.Query, opts)
		if err != nil {
			logger.Warn("headline fetch failed", zap.String("query", params.Query), zap.Error(err))
			return nil, fmt.Errorf("headline fetch failed: %w", err)
		}

		response := stockNewsResponse{
			Query:      params.Query,
			Items:      items,
			TotalCount: len(items),
			Provider:   config.Provider.Name(),
			Duration:   time.Since(start).String(),
		}

		return json.Marshal(response)
	}

	metadata := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "stock_news",
			Description: "Fetch recent news headlines for a stock symbol or company. Returns titles, sources, and summaries.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {
						"type": "string",
						"description": "Ticker symbol or company name, e.g. 'RELIANCE' or 'Reliance Industries'"
					},
					"max_items": {
						"type": "integer",
						"description": "Maximum number of headlines to return (default: 10)",
						"default": 10
					},
					"days": {
						"type": "integer",
						"description": "Look-back window in days (default: 7)",
						"default": 7
					}
				},
				"required": ["query"]
			}`),
		},
		Timeout:     config.Timeout,
		RateLimit:   config.RateLimit,
		Description: "Financial headline tool backed by a configurable news provider.",
	}

	return fn, metadata
}

// RegisterStockNewsTool creates and registers the stock news tool.
func RegisterStockNewsTool(registry ToolRegistry, config StockNewsToolConfig, logger *zap.Logger) error {
	fn, metadata := NewStockNewsTool(config, logger)
	return registry.Register("stock_news", fn, metadata)
}
