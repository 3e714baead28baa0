package crew

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/crewline/crewline/agent"
	"github.com/crewline/crewline/artifacts"
	"github.com/crewline/crewline/history"
	"github.com/crewline/crewline/internal/metrics"
	"github.com/crewline/crewline/llm"
	"github.com/crewline/crewline/llm/tools"
	"github.com/crewline/crewline/types"
)

// PipelineSpec is the YAML description of a crew: its agents and the
// ordered task list.
type PipelineSpec struct {
	Name   string      `yaml:"name" json:"name"`
	Agents []AgentSpec `yaml:"agents" json:"agents"`
	Tasks  []TaskSpec  `yaml:"tasks" json:"tasks"`
}

// AgentSpec declares one agent persona in a pipeline file.
type AgentSpec struct {
	Name          string   `yaml:"name" json:"name"`
	Goal          string   `yaml:"goal" json:"goal"`
	Backstory     string   `yaml:"backstory" json:"backstory"`
	Model         string   `yaml:"model" json:"model"`
	MaxIterations int      `yaml:"max_iterations" json:"max_iterations"`
	CacheEnabled  bool     `yaml:"cache_enabled" json:"cache_enabled"`
	Verbose       bool     `yaml:"verbose" json:"verbose"`
	Temperature   float32  `yaml:"temperature" json:"temperature"`
	MaxTokens     int      `yaml:"max_tokens" json:"max_tokens"`
	Tools         []string `yaml:"tools" json:"tools"`
}

// TaskSpec declares one task in a pipeline file.
type TaskSpec struct {
	ID             string   `yaml:"id" json:"id"`
	Description    string   `yaml:"description" json:"description"`
	ExpectedOutput string   `yaml:"expected_output" json:"expected_output"`
	Agent          string   `yaml:"agent" json:"agent"`
	Context        []string `yaml:"context" json:"context"`
	OutputFile     string   `yaml:"output_file" json:"output_file"`
}

// ParsePipeline decodes a pipeline spec. Unknown fields are rejected so
// typos in pipeline files fail loudly instead of being ignored.
func ParsePipeline(data []byte) (*PipelineSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec PipelineSpec
	if err := dec.Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.NewConfigError("pipeline file is empty")
		}
		return nil, types.NewConfigError("invalid pipeline file: %v", err)
	}
	if spec.Name == "" {
		spec.Name = "pipeline"
	}
	return &spec, nil
}

// LoadPipeline reads and decodes a pipeline spec from disk.
func LoadPipeline(path string) (*PipelineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewConfigError("cannot read pipeline file: %v", err)
	}
	return ParsePipeline(data)
}

// BuildDeps carries the runtime dependencies a pipeline spec is bound
// to: the backend provider, the tool registry the agents draw from, and
// the optional stores.
type BuildDeps struct {
	Provider         llm.Provider
	Tools            tools.ToolRegistry
	History          history.Store
	Redis            *redis.Client
	CacheConfig      *llm.ToolCacheConfig
	ContextMaxTokens int
	StepCallback     StepCallback
	Metrics          *metrics.Collector
	Logger           *zap.Logger
}

// Build materializes the spec into a runnable Crew: agents are
// constructed against deps.Provider, each limited to the tools its spec
// names, and tasks with an output_file get a FileSink.
func (s *PipelineSpec) Build(deps BuildDeps) (*Crew, error) {
	if deps.Provider == nil {
		return nil, types.NewConfigError("pipeline %q needs an llm provider", s.Name)
	}
	if len(s.Agents) == 0 {
		return nil, types.NewConfigError("pipeline %q declares no agents", s.Name)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	agents := make(map[string]*agent.Agent, len(s.Agents))
	for _, as := range s.Agents {
		if as.Name == "" {
			return nil, types.NewConfigError("pipeline %q declares an agent with no name", s.Name)
		}
		if _, dup := agents[as.Name]; dup {
			return nil, types.NewConfigError("duplicate agent name %q", as.Name)
		}

		registry, err := subRegistry(deps.Tools, as.Tools, as.Name, logger)
		if err != nil {
			return nil, err
		}

		a, err := agent.New(agent.Config{
			Role:          agent.Role{Name: as.Name, Goal: as.Goal, Backstory: as.Backstory},
			Provider:      deps.Provider,
			Registry:      registry,
			Model:         as.Model,
			MaxIterations: as.MaxIterations,
			CacheEnabled:  as.CacheEnabled,
			Verbose:       as.Verbose,
			Temperature:   as.Temperature,
			MaxTokens:     as.MaxTokens,
			Metrics:       deps.Metrics,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		agents[as.Name] = a
	}

	crewTasks := make([]*Task, 0, len(s.Tasks))
	for _, ts := range s.Tasks {
		a, ok := agents[ts.Agent]
		if !ok {
			return nil, types.NewConfigError("task %q references unknown agent %q", ts.ID, ts.Agent).WithTask(ts.ID)
		}

		var sink artifacts.Sink
		if ts.OutputFile != "" {
			sink = artifacts.NewFileSink(ts.OutputFile)
		}

		crewTasks = append(crewTasks, &Task{
			ID:             ts.ID,
			Description:    ts.Description,
			ExpectedOutput: ts.ExpectedOutput,
			Agent:          a,
			Context:        ts.Context,
			Sink:           sink,
		})
	}

	return New(Config{
		Name:             s.Name,
		Tasks:            crewTasks,
		StepCallback:     deps.StepCallback,
		History:          deps.History,
		Redis:            deps.Redis,
		CacheConfig:      deps.CacheConfig,
		ContextMaxTokens: deps.ContextMaxTokens,
		Metrics:          deps.Metrics,
		Logger:           logger,
	})
}

// subRegistry narrows the shared registry down to the named tools, so
// an agent only ever sees the tools its spec grants.
func subRegistry(src tools.ToolRegistry, names []string, agentName string, logger *zap.Logger) (tools.ToolRegistry, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if src == nil {
		return nil, types.NewConfigError("agent %q requests tools but no tool registry was provided", agentName)
	}

	reg := tools.NewDefaultRegistry(logger)
	for _, name := range names {
		fn, meta, err := src.Get(name)
		if err != nil {
			return nil, types.NewConfigError("agent %q requests unknown tool %q", agentName, name)
		}
		if err := reg.Register(name, fn, meta); err != nil {
			return nil, types.NewConfigError("agent %q tool %q: %v", agentName, name, err)
		}
	}
	return reg, nil
}
