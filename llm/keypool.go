package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoProviderKeys means the pool holds no enabled keys at all.
	ErrNoProviderKeys = errors.New("no keys loaded for provider")
	// ErrAllKeysUnhealthy means every loaded key is rate limited,
	// disabled, or failing.
	ErrAllKeysUnhealthy = errors.New("all provider keys are unhealthy")
)

// KeySource supplies rotating backend credentials to a provider. The
// provider picks a key per request and reports the outcome so the pool
// can steer traffic away from failing keys.
type KeySource interface {
	SelectKey(ctx context.Context) (*ProviderKey, error)
	RecordSuccess(ctx context.Context, keyID uint) error
	RecordFailure(ctx context.Context, keyID uint, errMsg string) error
}

// SelectionStrategy picks among healthy keys.
type SelectionStrategy string

const (
	StrategyRoundRobin     SelectionStrategy = "round_robin"
	StrategyWeightedRandom SelectionStrategy = "weighted_random"
	StrategyPriority       SelectionStrategy = "priority"
	StrategyLeastUsed      SelectionStrategy = "least_used"
)

// ProviderKey is one credential for a backend provider. A provider may
// carry several keys for load spreading and failover; usage statistics
// are persisted so health survives restarts.
type ProviderKey struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Provider string `gorm:"size:100;not null;index:idx_key_provider" json:"provider"`
	Secret   string `gorm:"size:500;not null" json:"-"`
	Label    string `gorm:"size:100" json:"label"`
	Priority int    `gorm:"default:100" json:"priority"` // lower runs first
	Weight   int    `gorm:"default:100" json:"weight"`
	Enabled  bool   `gorm:"default:true" json:"enabled"`

	TotalRequests  int64      `gorm:"default:0" json:"total_requests"`
	FailedRequests int64      `gorm:"default:0" json:"failed_requests"`
	LastUsedAt     *time.Time `json:"last_used_at"`
	LastErrorAt    *time.Time `json:"last_error_at"`
	LastError      string     `gorm:"type:text" json:"last_error"`

	// RateLimitRPM caps requests per minute. Zero means unlimited.
	RateLimitRPM int       `gorm:"default:0" json:"rate_limit_rpm"`
	CurrentRPM   int       `gorm:"default:0" json:"current_rpm"`
	RPMResetAt   time.Time `json:"rpm_reset_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProviderKey) TableName() string {
	return "provider_keys"
}

// IsHealthy reports whether the key should receive traffic.
func (k *ProviderKey) IsHealthy() bool {
	if !k.Enabled {
		return false
	}
	if k.RateLimitRPM > 0 && time.Now().Before(k.RPMResetAt) && k.CurrentRPM >= k.RateLimitRPM {
		return false
	}
	// A key failing more than half its calls is pulled once it has
	// enough history to judge.
	if k.TotalRequests >= 20 {
		if float64(k.FailedRequests)/float64(k.TotalRequests) > 0.5 {
			return false
		}
	}
	return true
}

// IncrementUsage updates counters and rolls the per-minute window.
func (k *ProviderKey) IncrementUsage(success bool) {
	now := time.Now()
	k.TotalRequests++
	k.LastUsedAt = &now

	if !success {
		k.FailedRequests++
		k.LastErrorAt = &now
	}

	if now.After(k.RPMResetAt) {
		k.CurrentRPM = 0
		k.RPMResetAt = now.Add(time.Minute)
	}
	k.CurrentRPM++
}

// KeyPool rotates the credentials stored for one provider. Selection
// happens in memory against keys loaded with LoadKeys; usage updates
// are written back to the database asynchronously so the completion
// path never waits on it.
type KeyPool struct {
	mu            sync.RWMutex
	db            *gorm.DB
	provider      string
	keys          []*ProviderKey
	strategy      SelectionStrategy
	roundRobinIdx int
	logger        *zap.Logger
	rng           *rand.Rand
}

// NewKeyPool creates a pool for the named provider. Call LoadKeys
// before selecting.
func NewKeyPool(db *gorm.DB, provider string, strategy SelectionStrategy, logger *zap.Logger) *KeyPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strategy == "" {
		strategy = StrategyWeightedRandom
	}
	return &KeyPool{
		db:       db,
		provider: provider,
		strategy: strategy,
		logger:   logger.With(zap.String("component", "llm.keypool"), zap.String("provider", provider)),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoadKeys reads the enabled keys for the provider from the database.
func (p *KeyPool) LoadKeys(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var keys []*ProviderKey
	err := p.db.WithContext(ctx).
		Where("provider = ? AND enabled = ?", p.provider, true).
		Order("priority ASC, weight DESC").
		Find(&keys).Error
	if err != nil {
		return fmt.Errorf("load provider keys: %w", err)
	}

	p.keys = keys
	p.logger.Info("provider keys loaded", zap.Int("count", len(keys)))
	return nil
}

// SelectKey picks a healthy key using the pool's strategy.
func (p *KeyPool) SelectKey(ctx context.Context) (*ProviderKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return nil, ErrNoProviderKeys
	}

	healthy := make([]*ProviderKey, 0, len(p.keys))
	for _, key := range p.keys {
		if key.IsHealthy() {
			healthy = append(healthy, key)
		}
	}
	if len(healthy) == 0 {
		return nil, ErrAllKeysUnhealthy
	}

	var selected *ProviderKey
	switch p.strategy {
	case StrategyRoundRobin:
		selected = healthy[p.roundRobinIdx%len(healthy)]
		p.roundRobinIdx++
	case StrategyPriority:
		// LoadKeys orders by priority already.
		selected = healthy[0]
	case StrategyLeastUsed:
		selected = leastUsed(healthy)
	default:
		selected = p.weightedRandom(healthy)
	}
	return selected, nil
}

func (p *KeyPool) weightedRandom(keys []*ProviderKey) *ProviderKey {
	totalWeight := 0
	for _, key := range keys {
		totalWeight += key.Weight
	}
	if totalWeight <= 0 {
		return keys[0]
	}

	target := p.rng.Intn(totalWeight)
	cumulative := 0
	for _, key := range keys {
		cumulative += key.Weight
		if cumulative > target {
			return key
		}
	}
	return keys[0]
}

func leastUsed(keys []*ProviderKey) *ProviderKey {
	sorted := make([]*ProviderKey, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TotalRequests < sorted[j].TotalRequests
	})
	return sorted[0]
}

// RecordSuccess notes a successful call on the key.
func (p *KeyPool) RecordSuccess(ctx context.Context, keyID uint) error {
	return p.record(keyID, true, "")
}

// RecordFailure notes a failed call on the key.
func (p *KeyPool) RecordFailure(ctx context.Context, keyID uint, errMsg string) error {
	return p.record(keyID, false, errMsg)
}

func (p *KeyPool) record(keyID uint, success bool, errMsg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range p.keys {
		if key.ID != keyID {
			continue
		}
		key.IncrementUsage(success)
		if !success {
			key.LastError = errMsg
		}
		go p.persist(snapshotOf(key))
		return nil
	}
	return fmt.Errorf("key %d not loaded in pool", keyID)
}

// keyUsage is the subset of ProviderKey persisted after each call,
// copied under the lock so the async writer races with nobody.
type keyUsage struct {
	ID             uint
	TotalRequests  int64
	FailedRequests int64
	LastUsedAt     *time.Time
	LastErrorAt    *time.Time
	LastError      string
	CurrentRPM     int
	RPMResetAt     time.Time
}

func snapshotOf(k *ProviderKey) keyUsage {
	return keyUsage{
		ID:             k.ID,
		TotalRequests:  k.TotalRequests,
		FailedRequests: k.FailedRequests,
		LastUsedAt:     k.LastUsedAt,
		LastErrorAt:    k.LastErrorAt,
		LastError:      k.LastError,
		CurrentRPM:     k.CurrentRPM,
		RPMResetAt:     k.RPMResetAt,
	}
}

func (p *KeyPool) persist(s keyUsage) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic persisting key usage",
				zap.Uint("key_id", s.ID),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := p.db.WithContext(ctx).Model(&ProviderKey{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"total_requests":  s.TotalRequests,
			"failed_requests": s.FailedRequests,
			"last_used_at":    s.LastUsedAt,
			"last_error_at":   s.LastErrorAt,
			"last_error":      s.LastError,
			"current_rpm":     s.CurrentRPM,
			"rpm_reset_at":    s.RPMResetAt,
		}).Error
	if err != nil {
		p.logger.Error("persist key usage failed",
			zap.Uint("key_id", s.ID),
			zap.Error(err))
	}
}

// KeyStats is a health snapshot of one key for operators.
type KeyStats struct {
	KeyID          uint       `json:"key_id"`
	Label          string     `json:"label"`
	Enabled        bool       `json:"enabled"`
	Healthy        bool       `json:"healthy"`
	TotalRequests  int64      `json:"total_requests"`
	FailedRequests int64      `json:"failed_requests"`
	SuccessRate    float64    `json:"success_rate"`
	CurrentRPM     int        `json:"current_rpm"`
	LastUsedAt     *time.Time `json:"last_used_at"`
	LastError      string     `json:"last_error,omitempty"`
}

// Stats reports per-key usage keyed by key ID.
func (p *KeyPool) Stats() map[uint]KeyStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := make(map[uint]KeyStats, len(p.keys))
	for _, key := range p.keys {
		rate := 1.0
		if key.TotalRequests > 0 {
			rate = float64(key.TotalRequests-key.FailedRequests) / float64(key.TotalRequests)
		}
		stats[key.ID] = KeyStats{
			KeyID:          key.ID,
			Label:          key.Label,
			Enabled:        key.Enabled,
			Healthy:        key.IsHealthy(),
			TotalRequests:  key.TotalRequests,
			FailedRequests: key.FailedRequests,
			SuccessRate:    rate,
			CurrentRPM:     key.CurrentRPM,
			LastUsedAt:     key.LastUsedAt,
			LastError:      key.LastError,
		}
	}
	return stats
}
