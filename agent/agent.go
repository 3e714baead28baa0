package agent

import (
	"go.uber.org/zap"

	"github.com/crewline/crewline/internal/metrics"
	"github.com/crewline/crewline/llm"
	"github.com/crewline/crewline/llm/retry"
	"github.com/crewline/crewline/llm/tools"
	"github.com/crewline/crewline/types"
)

// DefaultMaxIterations bounds the think/act loop when the config leaves
// the budget unset.
const DefaultMaxIterations = 5

// Role is the persona an agent assumes in its prompts.
type Role struct {
	Name      string `json:"name" yaml:"name"`
	Goal      string `json:"goal" yaml:"goal"`
	Backstory string `json:"backstory,omitempty" yaml:"backstory,omitempty"`
}

// Config assembles an agent.
type Config struct {
	Role     Role
	Provider llm.Provider

	// Registry holds the agent's toolbox. Nil means the agent answers
	// from its own knowledge without tool access.
	Registry tools.ToolRegistry

	// Model overrides the provider's configured model when set.
	Model string

	// MaxIterations caps think/act rounds per task. Zero selects
	// DefaultMaxIterations; negative is a configuration error.
	MaxIterations int

	// CacheEnabled lets repeated (tool, arguments) pairs within one run
	// short-circuit to the stored result.
	CacheEnabled bool

	// Verbose logs each reasoning round at info level.
	Verbose bool

	Temperature float32
	MaxTokens   int

	// RetryPolicy paces the single clarify retry after a backend
	// failure. Nil uses retry.DefaultPolicy.
	RetryPolicy *retry.Policy

	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Agent executes tasks through a bounded think/act loop.
type Agent struct {
	role          Role
	provider      llm.Provider
	registry      tools.ToolRegistry
	executor      tools.ToolExecutor
	model         string
	maxIterations int
	cacheEnabled  bool
	verbose       bool
	temperature   float32
	maxTokens     int
	retryPolicy   *retry.Policy
	metrics       *metrics.Collector
	logger        *zap.Logger
}

// New validates cfg and builds an agent. All validation failures carry
// types.ErrConfigInvalid and surface before any task runs.
func New(cfg Config) (*Agent, error) {
	if cfg.Role.Name == "" {
		return nil, types.NewConfigError("agent role name is required")
	}
	if cfg.Provider == nil {
		return nil, types.NewConfigError("agent %q: %v", cfg.Role.Name, ErrProviderNotSet).
			WithCause(ErrProviderNotSet)
	}
	if cfg.MaxIterations < 0 {
		return nil, types.NewConfigError("agent %q: max iterations must not be negative, got %d",
			cfg.Role.Name, cfg.MaxIterations)
	}

	hasTools := cfg.Registry != nil && len(cfg.Registry.List()) > 0
	if hasTools && !cfg.Provider.SupportsNativeFunctionCalling() {
		return nil, types.NewConfigError("agent %q: provider %q: %v",
			cfg.Role.Name, cfg.Provider.Name(), ErrNativeToolsRequired).
			WithCause(ErrNativeToolsRequired)
	}

	maxIterations := cfg.MaxIterations
	if maxIterations == 0 {
		maxIterations = DefaultMaxIterations
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "agent"), zap.String("agent", cfg.Role.Name))

	policy := cfg.RetryPolicy
	if policy == nil {
		policy = retry.DefaultPolicy()
	}

	var executor tools.ToolExecutor
	if cfg.Registry != nil {
		executor = tools.NewDefaultExecutor(cfg.Registry, logger)
	}

	return &Agent{
		role:          cfg.Role,
		provider:      cfg.Provider,
		registry:      cfg.Registry,
		executor:      executor,
		model:         cfg.Model,
		maxIterations: maxIterations,
		cacheEnabled:  cfg.CacheEnabled,
		verbose:       cfg.Verbose,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		retryPolicy:   policy,
		metrics:       cfg.Metrics,
		logger:        logger,
	}, nil
}

// Name returns the agent's role name.
func (a *Agent) Name() string { return a.role.Name }

// Role returns the agent's persona.
func (a *Agent) Role() Role { return a.role }

// MaxIterations returns the effective iteration budget.
func (a *Agent) MaxIterations() int { return a.maxIterations }

// CacheEnabled reports whether tool-result caching is on.
func (a *Agent) CacheEnabled() bool { return a.cacheEnabled }

// Model returns the backend model the agent requests.
func (a *Agent) Model() string { return a.model }

// toolSchemas lists the schemas exposed to the backend.
func (a *Agent) toolSchemas() []llm.ToolSchema {
	if a.registry == nil {
		return nil
	}
	return a.registry.List()
}
