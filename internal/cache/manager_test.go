package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appconfig "github.com/crewline/crewline/config"
)

func newTestManager(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0

	m, err := NewManager(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return mr, m
}

func TestNewManager_ConnectsAndPings(t *testing.T) {
	_, m := newTestManager(t)

	require.NotNil(t, m.Client())
	assert.NoError(t, m.Ping(context.Background()))
}

func TestNewManager_UnreachableAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"

	_, err := NewManager(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestManager_ClientIsUsable(t *testing.T) {
	mr, m := newTestManager(t)

	ctx := context.Background()
	require.NoError(t, m.Client().Set(ctx, "k", "v", time.Minute).Err())

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestManager_PingAfterServerGone(t *testing.T) {
	mr, m := newTestManager(t)

	mr.Close()
	assert.Error(t, m.Ping(context.Background()))
}

func TestManager_Close(t *testing.T) {
	_, m := newTestManager(t)

	require.NoError(t, m.Close())
	assert.Error(t, m.Ping(context.Background()))

	// Double close is a no-op.
	assert.NoError(t, m.Close())
}

func TestFromRedisConfig(t *testing.T) {
	cfg := FromRedisConfig(appconfig.RedisConfig{
		Addr:     "redis.internal:6380",
		Password: "secret",
		DB:       2,
		PoolSize: 20,
	})

	assert.Equal(t, "redis.internal:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, 20, cfg.PoolSize)
	// Unset fields keep their defaults.
	assert.Equal(t, DefaultConfig().MinIdleConns, cfg.MinIdleConns)

	empty := FromRedisConfig(appconfig.RedisConfig{})
	assert.Equal(t, DefaultConfig().Addr, empty.Addr)
}
