package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubProvider returns canned responses or errors for wrapper tests.
type stubProvider struct {
	name  string
	resp  *ChatResponse
	err   error
	calls int
}

func (s *stubProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (s *stubProvider) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubProvider) SupportsNativeFunctionCalling() bool { return true }

func TestResilientProvider_Passthrough(t *testing.T) {
	stub := &stubProvider{
		resp: &ChatResponse{
			Model:   "test-model",
			Choices: []ChatChoice{{Message: Message{Role: RoleAssistant, Content: "hello"}}},
		},
	}
	rp := NewResilientProvider(stub, ResilientConfig{}, zap.NewNop())

	resp, err := rp.Completion(context.Background(), &ChatRequest{Model: "test-model"})
	require.NoError(t, err)

	msg, ok := resp.First()
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "stub", rp.Name())
	assert.True(t, rp.SupportsNativeFunctionCalling())
}

func TestResilientProvider_NormalizesPlainErrors(t *testing.T) {
	stub := &stubProvider{err: errors.New("connection refused")}
	rp := NewResilientProvider(stub, ResilientConfig{}, zap.NewNop())

	_, err := rp.Completion(context.Background(), &ChatRequest{})
	require.Error(t, err)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrUpstreamError, provErr.Code)
	assert.Equal(t, "stub", provErr.Provider)
	assert.True(t, provErr.Retryable)
}

func TestResilientProvider_PreservesProviderErrors(t *testing.T) {
	stub := &stubProvider{
		err: NewError(ErrUnauthorized, "invalid api key").WithRetryable(false),
	}
	rp := NewResilientProvider(stub, ResilientConfig{}, zap.NewNop())

	_, err := rp.Completion(context.Background(), &ChatRequest{})
	require.Error(t, err)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrUnauthorized, provErr.Code)
	assert.False(t, provErr.Retryable)
	assert.Equal(t, "stub", provErr.Provider, "provider name filled in by the wrapper")
}

func TestResilientProvider_RateLimitCancelled(t *testing.T) {
	stub := &stubProvider{resp: &ChatResponse{}}
	rp := NewResilientProvider(stub, ResilientConfig{RateLimit: 0.001, RateBurst: 1}, zap.NewNop())

	// First call consumes the burst token.
	_, err := rp.Completion(context.Background(), &ChatRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rp.Completion(ctx, &ChatRequest{})
	require.Error(t, err)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrRateLimited, provErr.Code)
	assert.Equal(t, 1, stub.calls, "second call must not reach the provider")
}
