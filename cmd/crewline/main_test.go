package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewline/crewline/config"
)

func TestInputFlags(t *testing.T) {
	t.Run("collects repeated pairs", func(t *testing.T) {
		var f inputFlags
		require.NoError(t, f.Set("stock=NVDA"))
		require.NoError(t, f.Set("horizon=6m"))

		assert.Equal(t, map[string]string{"stock": "NVDA", "horizon": "6m"}, f.values)
	})

	t.Run("last value wins", func(t *testing.T) {
		var f inputFlags
		require.NoError(t, f.Set("stock=NVDA"))
		require.NoError(t, f.Set("stock=AMD"))

		assert.Equal(t, "AMD", f.values["stock"])
	})

	t.Run("value may contain equals", func(t *testing.T) {
		var f inputFlags
		require.NoError(t, f.Set("query=p=np"))

		assert.Equal(t, "p=np", f.values["query"])
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		var f inputFlags
		assert.Error(t, f.Set("no-separator"))
		assert.Error(t, f.Set("=value"))
	})
}

func TestResolvePipeline(t *testing.T) {
	t.Run("builtin needs market data", func(t *testing.T) {
		_, err := resolvePipeline("", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--marketdata-url")
	})

	t.Run("builtin pipeline is well formed", func(t *testing.T) {
		spec, err := resolvePipeline("", true)
		require.NoError(t, err)

		assert.Equal(t, "equity-research", spec.Name)
		require.Len(t, spec.Tasks, 4)

		// Context references must point at earlier tasks only.
		seen := map[string]bool{}
		for _, task := range spec.Tasks {
			for _, ref := range task.Context {
				assert.True(t, seen[ref], "task %s references %s before it runs", task.ID, ref)
			}
			seen[task.ID] = true
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := resolvePipeline("does-not-exist.yaml", false)
		assert.Error(t, err)
	})
}

func TestInitLogger(t *testing.T) {
	t.Run("json config", func(t *testing.T) {
		logger := initLogger(config.LogConfig{Level: "debug", Format: "json", OutputPaths: []string{"stdout"}})
		require.NotNil(t, logger)
		logger.Sync()
	})

	t.Run("console config", func(t *testing.T) {
		logger := initLogger(config.LogConfig{Level: "warn", Format: "console"})
		require.NotNil(t, logger)
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		logger := initLogger(config.LogConfig{Level: "loud", Format: "json"})
		require.NotNil(t, logger)
	})
}
