package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full engine configuration. Defaults come from
// DefaultConfig, a YAML file overrides them, environment variables
// override the file.
type Config struct {
	// Log configures the zap logger built by the CLI.
	Log LogConfig `yaml:"log" env:"LOG"`

	// LLM configures the backend provider.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Cache configures the tool-result cache.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// History configures the run-history store.
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry configures OTLP trace/metric export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// LogConfig controls log level and encoding.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs (stdout, stderr, file paths).
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with file:line.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// LLMConfig configures the chat-completions backend.
type LLMConfig struct {
	// Provider is a label for logs and errors (openai, deepseek, ...).
	Provider string `yaml:"provider" env:"PROVIDER"`
	// APIKey authenticates against the backend.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Model is the default model when a request names none.
	Model string `yaml:"model" env:"MODEL"`
	// Timeout bounds a single completion call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// MaxRetries bounds transport-level retries.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// RequestsPerSecond throttles backend calls. Zero disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// Burst is the limiter bucket size.
	Burst int `yaml:"burst" env:"BURST"`
	// ContextMaxTokens caps the context blob handed to each task.
	// Zero means no budget.
	ContextMaxTokens int `yaml:"context_max_tokens" env:"CONTEXT_MAX_TOKENS"`
}

// CacheConfig configures the two-tier tool-result cache.
type CacheConfig struct {
	// LocalMaxSize caps the in-process tier. Zero disables it.
	LocalMaxSize int `yaml:"local_max_size" env:"LOCAL_MAX_SIZE"`
	// LocalTTL expires in-process entries.
	LocalTTL time.Duration `yaml:"local_ttl" env:"LOCAL_TTL"`
	// RedisTTL expires Redis entries.
	RedisTTL time.Duration `yaml:"redis_ttl" env:"REDIS_TTL"`
	// Redis configures the optional Redis tier.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig configures the optional Redis cache tier.
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// HistoryConfig configures the run-history store.
type HistoryConfig struct {
	// Driver is one of memory, sqlite, postgres, mysql.
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// Name is the database name; for sqlite it is the file path.
	Name    string `yaml:"name" env:"NAME"`
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr is the listen address, e.g. ":9091".
	Addr string `yaml:"addr" env:"ADDR"`
	// Path is the scrape path.
	Path string `yaml:"path" env:"PATH"`
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Validate reports configuration errors a run could not recover from.
func (c *Config) Validate() error {
	var errs []string

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not json or console", c.Log.Format))
	}

	if c.LLM.Timeout <= 0 {
		errs = append(errs, "llm.timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, "llm.max_retries must not be negative")
	}
	if c.LLM.RequestsPerSecond < 0 {
		errs = append(errs, "llm.requests_per_second must not be negative")
	}

	switch c.History.Driver {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("history.driver %q is not one of memory, sqlite, postgres, mysql", c.History.Driver))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN builds the connection string for the configured driver. The
// memory driver needs none and returns "".
func (h *HistoryConfig) DSN() string {
	switch h.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			h.Host, h.Port, h.User, h.Password, h.Name, h.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			h.User, h.Password, h.Host, h.Port, h.Name,
		)
	case "sqlite":
		return h.Name
	default:
		return ""
	}
}
