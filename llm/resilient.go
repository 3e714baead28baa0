package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilientConfig configures the resilient provider wrapper.
type ResilientConfig struct {
	// RateLimit is the sustained request rate in requests per second.
	// Zero disables local throttling.
	RateLimit float64
	// RateBurst is the burst size for the limiter. Defaults to 1 when a
	// rate limit is set.
	RateBurst int
}

// ResilientProvider decorates a Provider with local rate limiting and
// error normalization. It enhances the wrapped provider without changing
// its behavior; the agent loop decides what a failure means for a task.
type ResilientProvider struct {
	provider Provider
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewResilientProvider wraps provider with throttling and error normalization.
func NewResilientProvider(provider Provider, cfg ResilientConfig, logger *zap.Logger) *ResilientProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &ResilientProvider{
		provider: provider,
		limiter:  limiter,
		logger:   logger.With(zap.String("component", "resilient_provider")),
	}
}

// Completion implements Provider.Completion.
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if rp.limiter != nil {
		if err := rp.limiter.Wait(ctx); err != nil {
			return nil, NewError(ErrRateLimited, "rate limiter wait cancelled").
				WithProvider(rp.provider.Name()).
				WithRetryable(false)
		}
	}

	start := time.Now()
	resp, err := rp.provider.Completion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		norm := rp.normalize(ctx, err)
		rp.logger.Warn("completion failed",
			zap.String("provider", rp.provider.Name()),
			zap.String("model", req.Model),
			zap.String("code", string(norm.Code)),
			zap.Bool("retryable", norm.Retryable),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, norm
	}

	rp.logger.Debug("completion ok",
		zap.String("provider", rp.provider.Name()),
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", duration),
	)
	return resp, nil
}

// HealthCheck implements Provider.HealthCheck.
func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return rp.provider.HealthCheck(ctx)
}

// Name implements Provider.Name.
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

// SupportsNativeFunctionCalling delegates to the wrapped provider.
func (rp *ResilientProvider) SupportsNativeFunctionCalling() bool {
	return rp.provider.SupportsNativeFunctionCalling()
}

// normalize maps arbitrary failures onto *Error so callers can reason
// about retryability uniformly.
func (rp *ResilientProvider) normalize(ctx context.Context, err error) *Error {
	var provErr *Error
	if errors.As(err, &provErr) {
		if provErr.Provider == "" {
			provErr.Provider = rp.provider.Name()
		}
		return provErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrUpstreamTimeout, err.Error()).
			WithProvider(rp.provider.Name()).
			WithRetryable(true)
	case errors.Is(err, context.Canceled), ctx.Err() != nil:
		return NewError(ErrUpstreamError, err.Error()).
			WithProvider(rp.provider.Name()).
			WithRetryable(false)
	default:
		return NewError(ErrUpstreamError, err.Error()).
			WithProvider(rp.provider.Name()).
			WithRetryable(true)
	}
}
