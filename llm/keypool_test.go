package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupKeyDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ProviderKey{}))
	return db
}

func TestKeyPool_LoadKeysSkipsDisabled(t *testing.T) {
	db := setupKeyDB(t)

	keys := []*ProviderKey{
		{Provider: "openai", Secret: "key1", Label: "primary", Priority: 1, Weight: 100, Enabled: true},
		{Provider: "openai", Secret: "key2", Label: "backup", Priority: 2, Weight: 50, Enabled: true},
		{Provider: "openai", Secret: "key3", Label: "revoked", Priority: 3, Weight: 100, Enabled: false},
		{Provider: "deepseek", Secret: "other", Priority: 1, Weight: 100, Enabled: true},
	}
	for _, key := range keys {
		require.NoError(t, db.Create(key).Error)
	}

	pool := NewKeyPool(db, "openai", StrategyWeightedRandom, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	assert.Len(t, pool.keys, 2)
	assert.Equal(t, "key1", pool.keys[0].Secret)
	assert.Equal(t, "key2", pool.keys[1].Secret)
}

func TestKeyPool_SelectKeyRoundRobin(t *testing.T) {
	db := setupKeyDB(t)
	for i := 1; i <= 3; i++ {
		require.NoError(t, db.Create(&ProviderKey{
			Provider: "openai",
			Secret:   fmt.Sprintf("key%d", i),
			Priority: i,
			Weight:   100,
			Enabled:  true,
		}).Error)
	}

	pool := NewKeyPool(db, "openai", StrategyRoundRobin, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	ctx := context.Background()
	var order []string
	for i := 0; i < 4; i++ {
		key, err := pool.SelectKey(ctx)
		require.NoError(t, err)
		order = append(order, key.Secret)
	}
	assert.Equal(t, []string{"key1", "key2", "key3", "key1"}, order)
}

func TestKeyPool_SelectKeyPriority(t *testing.T) {
	db := setupKeyDB(t)
	keys := []*ProviderKey{
		{Provider: "openai", Secret: "key-low", Priority: 100, Weight: 100, Enabled: true},
		{Provider: "openai", Secret: "key-high", Priority: 1, Weight: 100, Enabled: true},
		{Provider: "openai", Secret: "key-mid", Priority: 50, Weight: 100, Enabled: true},
	}
	for _, key := range keys {
		require.NoError(t, db.Create(key).Error)
	}

	pool := NewKeyPool(db, "openai", StrategyPriority, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		key, err := pool.SelectKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, "key-high", key.Secret)
	}
}

func TestKeyPool_SelectKeySkipsRateLimited(t *testing.T) {
	db := setupKeyDB(t)
	now := time.Now()
	keys := []*ProviderKey{
		{
			Provider:     "openai",
			Secret:       "key-limited",
			Priority:     1,
			Weight:       100,
			Enabled:      true,
			RateLimitRPM: 10,
			CurrentRPM:   10,
			RPMResetAt:   now.Add(time.Minute),
		},
		{Provider: "openai", Secret: "key-available", Priority: 2, Weight: 100, Enabled: true},
	}
	for _, key := range keys {
		require.NoError(t, db.Create(key).Error)
	}

	pool := NewKeyPool(db, "openai", StrategyPriority, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	key, err := pool.SelectKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-available", key.Secret)
}

func TestKeyPool_AllKeysUnhealthy(t *testing.T) {
	db := setupKeyDB(t)
	now := time.Now()
	for i := 1; i <= 2; i++ {
		require.NoError(t, db.Create(&ProviderKey{
			Provider:     "openai",
			Secret:       fmt.Sprintf("key%d", i),
			Enabled:      true,
			RateLimitRPM: 10,
			CurrentRPM:   10,
			RPMResetAt:   now.Add(time.Minute),
		}).Error)
	}

	pool := NewKeyPool(db, "openai", StrategyRoundRobin, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	_, err := pool.SelectKey(context.Background())
	assert.ErrorIs(t, err, ErrAllKeysUnhealthy)
}

func TestKeyPool_EmptyPool(t *testing.T) {
	db := setupKeyDB(t)
	pool := NewKeyPool(db, "openai", StrategyRoundRobin, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	_, err := pool.SelectKey(context.Background())
	assert.ErrorIs(t, err, ErrNoProviderKeys)
}

func TestKeyPool_RecordOutcomes(t *testing.T) {
	db := setupKeyDB(t)
	require.NoError(t, db.Create(&ProviderKey{
		Provider: "openai",
		Secret:   "test-key",
		Enabled:  true,
	}).Error)

	pool := NewKeyPool(db, "openai", StrategyRoundRobin, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	ctx := context.Background()
	key, err := pool.SelectKey(ctx)
	require.NoError(t, err)

	// Usage is flushed to the database asynchronously, so wait for each
	// write before issuing the next one.
	require.NoError(t, pool.RecordSuccess(ctx, key.ID))
	assert.Eventually(t, func() bool {
		var row ProviderKey
		if err := db.First(&row, key.ID).Error; err != nil {
			return false
		}
		return row.TotalRequests == 1 && row.FailedRequests == 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, pool.RecordFailure(ctx, key.ID, "rate limit exceeded"))
	assert.Eventually(t, func() bool {
		var row ProviderKey
		if err := db.First(&row, key.ID).Error; err != nil {
			return false
		}
		return row.TotalRequests == 2 && row.FailedRequests == 1
	}, 2*time.Second, 20*time.Millisecond)

	stats := pool.Stats()
	require.Contains(t, stats, key.ID)
	assert.Equal(t, int64(2), stats[key.ID].TotalRequests)
	assert.Equal(t, int64(1), stats[key.ID].FailedRequests)
	assert.Equal(t, 0.5, stats[key.ID].SuccessRate)
	assert.Equal(t, "rate limit exceeded", stats[key.ID].LastError)
}

func TestKeyPool_RecordUnknownKey(t *testing.T) {
	db := setupKeyDB(t)
	pool := NewKeyPool(db, "openai", StrategyRoundRobin, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	err := pool.RecordSuccess(context.Background(), 999)
	assert.Error(t, err)
}

func TestKeyPool_WeightedRandomDistribution(t *testing.T) {
	db := setupKeyDB(t)
	keys := []*ProviderKey{
		{Provider: "openai", Secret: "key-heavy", Weight: 90, Enabled: true},
		{Provider: "openai", Secret: "key-light", Weight: 10, Enabled: true},
	}
	for _, key := range keys {
		require.NoError(t, db.Create(key).Error)
	}

	pool := NewKeyPool(db, "openai", StrategyWeightedRandom, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	ctx := context.Background()
	counts := make(map[string]int)
	const iterations = 1000
	for i := 0; i < iterations; i++ {
		key, err := pool.SelectKey(ctx)
		require.NoError(t, err)
		counts[key.Secret]++
	}

	heavyRatio := float64(counts["key-heavy"]) / float64(iterations)
	assert.InDelta(t, 0.9, heavyRatio, 0.2)
}

func TestKeyPool_LeastUsed(t *testing.T) {
	db := setupKeyDB(t)
	keys := []*ProviderKey{
		{Provider: "openai", Secret: "key-busy", Weight: 100, Enabled: true, TotalRequests: 50},
		{Provider: "openai", Secret: "key-idle", Weight: 100, Enabled: true, TotalRequests: 2},
	}
	for _, key := range keys {
		require.NoError(t, db.Create(key).Error)
	}

	pool := NewKeyPool(db, "openai", StrategyLeastUsed, zaptest.NewLogger(t))
	require.NoError(t, pool.LoadKeys(context.Background()))

	key, err := pool.SelectKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-idle", key.Secret)
}

func TestProviderKey_IsHealthy(t *testing.T) {
	tests := []struct {
		name string
		key  *ProviderKey
		want bool
	}{
		{
			name: "healthy key",
			key:  &ProviderKey{Enabled: true, TotalRequests: 100, FailedRequests: 10},
			want: true,
		},
		{
			name: "disabled key",
			key:  &ProviderKey{Enabled: false},
			want: false,
		},
		{
			name: "rpm exhausted",
			key: &ProviderKey{
				Enabled:      true,
				RateLimitRPM: 10,
				CurrentRPM:   10,
				RPMResetAt:   time.Now().Add(time.Minute),
			},
			want: false,
		},
		{
			name: "rpm window expired",
			key: &ProviderKey{
				Enabled:      true,
				RateLimitRPM: 10,
				CurrentRPM:   10,
				RPMResetAt:   time.Now().Add(-time.Minute),
			},
			want: true,
		},
		{
			name: "high error rate",
			key:  &ProviderKey{Enabled: true, TotalRequests: 100, FailedRequests: 60},
			want: false,
		},
		{
			name: "too little history to judge",
			key:  &ProviderKey{Enabled: true, TotalRequests: 5, FailedRequests: 5},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.IsHealthy())
		})
	}
}

func TestProviderKey_IncrementUsage(t *testing.T) {
	key := &ProviderKey{
		RateLimitRPM: 100,
		RPMResetAt:   time.Now().Add(-time.Second),
	}

	key.IncrementUsage(true)
	assert.Equal(t, int64(1), key.TotalRequests)
	assert.Equal(t, int64(0), key.FailedRequests)
	assert.Equal(t, 1, key.CurrentRPM)
	assert.NotNil(t, key.LastUsedAt)

	key.IncrementUsage(false)
	assert.Equal(t, int64(2), key.TotalRequests)
	assert.Equal(t, int64(1), key.FailedRequests)
	assert.NotNil(t, key.LastErrorAt)
}
