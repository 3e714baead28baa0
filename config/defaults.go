package config

import "time"

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		LLM:       DefaultLLMConfig(),
		Cache:     DefaultCacheConfig(),
		History:   DefaultHistoryConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultLogConfig returns json logging at info level on stdout.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultLLMConfig points at the OpenAI endpoint with no key set.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:          "openai",
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o-mini",
		Timeout:           2 * time.Minute,
		MaxRetries:        3,
		RequestsPerSecond: 0,
		Burst:             1,
		ContextMaxTokens:  0,
	}
}

// DefaultCacheConfig enables the local tier only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     30 * time.Minute,
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
	}
}

// DefaultHistoryConfig keeps runs in memory.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Driver:  "memory",
		Host:    "localhost",
		Port:    5432,
		User:    "crewline",
		Name:    "crewline",
		SSLMode: "disable",
	}
}

// DefaultMetricsConfig leaves the scrape endpoint off.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Path:      "/metrics",
		Namespace: "crewline",
	}
}

// DefaultTelemetryConfig leaves OTLP export off.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewline",
		SampleRate:   0.1,
	}
}
