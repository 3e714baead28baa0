// Package retry provides the backoff policy used when a backend call is
// retried. The engine retries a failed completion exactly once per round,
// so the policy here only shapes the pause before that retry.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines backoff timing between attempts.
type Policy struct {
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // upper bound for any delay
	Multiplier   float64       // exponential growth factor
	Jitter       bool          // add random jitter to avoid thundering herds
}

// DefaultPolicy returns timing suitable for LLM API calls.
func DefaultPolicy() *Policy {
	return &Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Delay returns the backoff before the given attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := p.InitialDelay
	if initial <= 0 {
		initial = 1 * time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	// Jitter of +/-25% keeps concurrent clients from retrying in lockstep.
	if p.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}

	if delay < float64(initial) {
		delay = float64(initial)
	}
	return time.Duration(delay)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
