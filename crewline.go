// Package crewline provides a top-level convenience entry point for
// assembling a ready-to-run engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/crewline/crewline"
//
//	eng, err := crewline.New(crewline.WithConfigFile("crewline.yaml"))
//	eng, err := crewline.New(crewline.WithAPIKey("sk-..."), crewline.WithModel("gpt-4o-mini"))
//	defer eng.Close()
//
//	c, err := eng.LoadCrew("pipeline.yaml")
//	result, err := c.Run(ctx, map[string]string{"stock": "NVDA"})
//
// The engine owns the pieces a pipeline run needs: the chat-completions
// provider, the shared tool registry, the run-history store, the optional
// Redis cache tier, and the Prometheus collector. Components the caller
// injects (WithProvider, WithHistory, WithTools) are used as-is and stay
// under the caller's lifecycle.
package crewline

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/crewline/crewline/config"
	"github.com/crewline/crewline/crew"
	"github.com/crewline/crewline/history"
	"github.com/crewline/crewline/internal/cache"
	"github.com/crewline/crewline/internal/metrics"
	"github.com/crewline/crewline/llm"
	"github.com/crewline/crewline/llm/providers/openaicompat"
	"github.com/crewline/crewline/llm/tools"
)

// Option configures the engine created by [New].
type Option func(*options)

type toolRegistration struct {
	name string
	fn   tools.ToolFunc
	meta tools.ToolMetadata
}

type options struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	provider llm.Provider
	keys     llm.KeySource
	apiKey   string
	model    string
	baseURL  string

	history      history.Store
	registry     tools.ToolRegistry
	tools        []toolRegistration
	marketData   *tools.MarketDataConfig
	stepCallback crew.StepCallback
}

// WithConfig supplies a fully built configuration. Wins over
// WithConfigFile.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads configuration from a YAML file, layered between
// the defaults and the CREWLINE_* environment variables.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProvider sets a pre-built LLM provider. The engine uses it as-is,
// without the resilient wrapper it applies to providers it constructs.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithAPIKey overrides the backend API key from the configuration.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithModel overrides the default model name.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL points the provider at a different OpenAI-compatible
// endpoint (DeepSeek, vLLM, Ollama, ...).
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithKeySource supplies rotating backend credentials, typically an
// [llm.KeyPool]. Ignored when WithProvider is used.
func WithKeySource(ks llm.KeySource) Option {
	return func(o *options) { o.keys = ks }
}

// WithHistory sets a pre-built run-history store. Its lifecycle stays
// with the caller; Close will not touch it.
func WithHistory(store history.Store) Option {
	return func(o *options) { o.history = store }
}

// WithTools sets a pre-built tool registry, replacing the default.
func WithTools(reg tools.ToolRegistry) Option {
	return func(o *options) { o.registry = reg }
}

// WithTool registers a single tool with the engine's registry.
func WithTool(name string, fn tools.ToolFunc, meta tools.ToolMetadata) Option {
	return func(o *options) {
		o.tools = append(o.tools, toolRegistration{name: name, fn: fn, meta: meta})
	}
}

// WithMarketData wires the built-in stock_price and stock_news tools
// against an HTTP market-data backend.
func WithMarketData(cfg tools.MarketDataConfig) Option {
	return func(o *options) { o.marketData = &cfg }
}

// WithStepCallback sets the per-task observer passed to every crew the
// engine builds.
func WithStepCallback(cb crew.StepCallback) Option {
	return func(o *options) { o.stepCallback = cb }
}

// Engine bundles the runtime dependencies of a pipeline run. Build one
// with [New], materialize crews with [Engine.BuildCrew] or
// [Engine.LoadCrew], and release owned resources with [Engine.Close].
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	provider llm.Provider
	registry tools.ToolRegistry

	historyStore history.Store
	ownsHistory  bool

	redisManager *cache.Manager

	collector    *metrics.Collector
	promRegistry *prometheus.Registry

	stepCallback crew.StepCallback
}

// New assembles an engine. Configuration is resolved first (defaults,
// optional YAML file, environment), then every component the caller did
// not inject is constructed from it.
func New(opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loaded, err := config.NewLoader().WithConfigPath(o.configPath).Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if o.apiKey != "" {
		cfg.LLM.APIKey = o.apiKey
	}
	if o.model != "" {
		cfg.LLM.Model = o.model
	}
	if o.baseURL != "" {
		cfg.LLM.BaseURL = o.baseURL
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	eng := &Engine{
		cfg:          cfg,
		logger:       logger,
		stepCallback: o.stepCallback,
	}

	eng.provider = o.provider
	if eng.provider == nil {
		base := openaicompat.New(openaicompat.Config{
			Name:    cfg.LLM.Provider,
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
			Keys:    o.keys,
		}, logger)
		eng.provider = llm.NewResilientProvider(base, llm.ResilientConfig{
			RateLimit: cfg.LLM.RequestsPerSecond,
			RateBurst: cfg.LLM.Burst,
		}, logger)
	}

	if err := eng.initHistory(o.history); err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		mgr, err := cache.NewManager(cache.FromRedisConfig(cfg.Cache.Redis), logger)
		if err != nil {
			eng.Close()
			return nil, fmt.Errorf("init redis cache tier: %w", err)
		}
		eng.redisManager = mgr
	}

	if cfg.Metrics.Enabled {
		eng.promRegistry = prometheus.NewRegistry()
		eng.collector = metrics.NewCollector(cfg.Metrics.Namespace, eng.promRegistry, logger)
	}

	if err := eng.initTools(&o); err != nil {
		eng.Close()
		return nil, err
	}

	return eng, nil
}

func (e *Engine) initHistory(injected history.Store) error {
	if injected != nil {
		e.historyStore = injected
		return nil
	}

	switch e.cfg.History.Driver {
	case "", "memory":
		e.historyStore = history.NewMemoryStore()
		return nil
	}

	store, err := history.Open(e.cfg.History.Driver, e.cfg.History.DSN(), e.logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	// AutoMigrate is additive, so deployments that manage the schema
	// with `crewline migrate` see a no-op here.
	if err := store.AutoMigrate(); err != nil {
		store.Close()
		return fmt.Errorf("migrate history store: %w", err)
	}
	e.historyStore = store
	e.ownsHistory = true
	return nil
}

func (e *Engine) initTools(o *options) error {
	reg := o.registry
	if reg == nil {
		reg = tools.NewDefaultRegistry(e.logger)
	}
	e.registry = reg

	if o.marketData != nil {
		quotes, err := tools.NewHTTPQuoteProvider(*o.marketData)
		if err != nil {
			return fmt.Errorf("market data quotes: %w", err)
		}
		news, err := tools.NewHTTPNewsProvider(*o.marketData)
		if err != nil {
			return fmt.Errorf("market data news: %w", err)
		}

		priceCfg := tools.DefaultStockPriceToolConfig()
		priceCfg.Provider = quotes
		if err := tools.RegisterStockPriceTool(reg, priceCfg, e.logger); err != nil {
			return err
		}
		newsCfg := tools.DefaultStockNewsToolConfig()
		newsCfg.Provider = news
		if err := tools.RegisterStockNewsTool(reg, newsCfg, e.logger); err != nil {
			return err
		}
	}

	for _, t := range o.tools {
		if err := reg.Register(t.name, t.fn, t.meta); err != nil {
			return fmt.Errorf("register tool %q: %w", t.name, err)
		}
	}
	return nil
}

// BuildCrew materializes a pipeline spec against the engine's
// components.
func (e *Engine) BuildCrew(spec *crew.PipelineSpec) (*crew.Crew, error) {
	return spec.Build(crew.BuildDeps{
		Provider:         e.provider,
		Tools:            e.registry,
		History:          e.historyStore,
		Redis:            e.Redis(),
		CacheConfig:      e.toolCacheConfig(),
		ContextMaxTokens: e.cfg.LLM.ContextMaxTokens,
		StepCallback:     e.stepCallback,
		Metrics:          e.collector,
		Logger:           e.logger,
	})
}

// LoadCrew reads a pipeline YAML file and builds it.
func (e *Engine) LoadCrew(path string) (*crew.Crew, error) {
	spec, err := crew.LoadPipeline(path)
	if err != nil {
		return nil, err
	}
	return e.BuildCrew(spec)
}

func (e *Engine) toolCacheConfig() *llm.ToolCacheConfig {
	return &llm.ToolCacheConfig{
		LocalMaxSize: e.cfg.Cache.LocalMaxSize,
		LocalTTL:     e.cfg.Cache.LocalTTL,
		RedisTTL:     e.cfg.Cache.RedisTTL,
		EnableLocal:  e.cfg.Cache.LocalMaxSize > 0,
		EnableRedis:  e.redisManager != nil,
	}
}

// Config returns the resolved configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Provider returns the chat-completions provider crews run against.
func (e *Engine) Provider() llm.Provider { return e.provider }

// Tools returns the shared tool registry.
func (e *Engine) Tools() tools.ToolRegistry { return e.registry }

// History returns the run-history store.
func (e *Engine) History() history.Store { return e.historyStore }

// Redis returns the Redis client of the cache tier, or nil when the
// tier is disabled.
func (e *Engine) Redis() *redis.Client {
	if e.redisManager == nil {
		return nil
	}
	return e.redisManager.Client()
}

// Metrics returns the Prometheus collector, or nil when metrics are
// disabled.
func (e *Engine) Metrics() *metrics.Collector { return e.collector }

// MetricsRegistry returns the registry backing the collector for scrape
// handlers, or nil when metrics are disabled.
func (e *Engine) MetricsRegistry() *prometheus.Registry { return e.promRegistry }

// Close releases the resources the engine owns: the Redis connection
// and any history store it opened itself. Injected components are left
// alone.
func (e *Engine) Close() error {
	var errs []error
	if e.redisManager != nil {
		if err := e.redisManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		e.redisManager = nil
	}
	if e.ownsHistory && e.historyStore != nil {
		if err := e.historyStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history store: %w", err))
		}
		e.historyStore = nil
		e.ownsHistory = false
	}
	return errors.Join(errs...)
}
