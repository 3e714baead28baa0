package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/crewline/crewline/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func echoTool(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func newTestRegistry(t *testing.T) *DefaultRegistry {
	t.Helper()
	return NewDefaultRegistry(zap.NewNop())
}

func TestRegistry_Register(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.Register("echo", echoTool, ToolMetadata{})
	require.NoError(t, err)
	assert.True(t, reg.Has("echo"))

	// Duplicate registration is rejected.
	err = reg.Register("echo", echoTool, ToolMetadata{})
	assert.Error(t, err)

	// Schema name must match the registration name.
	err = reg.Register("other", echoTool, ToolMetadata{
		Schema: llm.ToolSchema{Name: "mismatch"},
	})
	assert.Error(t, err)

	_, meta, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", meta.Schema.Name)
	assert.Equal(t, 30*time.Second, meta.Timeout, "default timeout applied")

	schemas := reg.List()
	require.Len(t, schemas, 1)
	assert.Equal(t, "echo", schemas[0].Name)

	require.NoError(t, reg.Unregister("echo"))
	assert.False(t, reg.Has("echo"))
	assert.Error(t, reg.Unregister("echo"))
}

func TestExecuteOne_Success(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register("echo", echoTool, ToolMetadata{}))
	exec := NewDefaultExecutor(reg, zap.NewNop())

	result := exec.ExecuteOne(context.Background(), llm.ToolCall{
		ID:        "call-1",
		Name:      "echo",
		Arguments: json.RawMessage(`{"symbol":"RELIANCE"}`),
	})

	assert.Empty(t, result.Error)
	assert.JSONEq(t, `{"symbol":"RELIANCE"}`, string(result.Result))
	assert.Equal(t, "call-1", result.ToolCallID)
}

func TestExecuteOne_UnknownTool(t *testing.T) {
	reg := newTestRegistry(t)
	exec := NewDefaultExecutor(reg, zap.NewNop())

	result := exec.ExecuteOne(context.Background(), llm.ToolCall{
		ID:   "call-1",
		Name: "no_such_tool",
	})

	assert.Contains(t, result.Error, "tool not found")
	assert.Empty(t, result.Result)
}

func TestExecuteOne_InvalidArguments(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register("echo", echoTool, ToolMetadata{}))
	exec := NewDefaultExecutor(reg, zap.NewNop())

	result := exec.ExecuteOne(context.Background(), llm.ToolCall{
		ID:        "call-1",
		Name:      "echo",
		Arguments: json.RawMessage(`{not json`),
	})

	assert.Contains(t, result.Error, "invalid arguments")
}

func TestExecuteOne_ToolError(t *testing.T) {
	reg := newTestRegistry(t)
	failing := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("upstream quote service returned 503")
	}
	require.NoError(t, reg.Register("quote", failing, ToolMetadata{}))
	exec := NewDefaultExecutor(reg, zap.NewNop())

	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "call-1", Name: "quote"})
	assert.Contains(t, result.Error, "503")
}

func TestExecuteOne_Timeout(t *testing.T) {
	reg := newTestRegistry(t)
	slow := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(5 * time.Second):
			return json.RawMessage(`"done"`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	require.NoError(t, reg.Register("slow", slow, ToolMetadata{Timeout: 30 * time.Millisecond}))
	exec := NewDefaultExecutor(reg, zap.NewNop())

	start := time.Now()
	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "call-1", Name: "slow"})
	assert.Contains(t, result.Error, "timeout")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteOne_PanicContained(t *testing.T) {
	reg := newTestRegistry(t)
	panicky := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		panic("index out of range")
	}
	require.NoError(t, reg.Register("panicky", panicky, ToolMetadata{}))
	exec := NewDefaultExecutor(reg, zap.NewNop())

	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "call-1", Name: "panicky"})
	assert.Contains(t, result.Error, "tool panicked")
}

func TestExecuteOne_RateLimited(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register("echo", echoTool, ToolMetadata{
		RateLimit: &RateLimitConfig{MaxCalls: 1, Window: time.Hour},
	}))
	exec := NewDefaultExecutor(reg, zap.NewNop())

	first := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "c1", Name: "echo"})
	assert.Empty(t, first.Error)

	second := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "c2", Name: "echo"})
	assert.Contains(t, second.Error, "rate limit exceeded")
}

func TestToolResult_ToMessage(t *testing.T) {
	ok := ToolResult{ToolCallID: "c1", Name: "echo", Result: json.RawMessage(`{"price":12}`)}
	msg := ok.ToMessage()
	assert.Equal(t, llm.RoleTool, msg.Role)
	assert.Equal(t, "c1", msg.ToolCallID)
	assert.Equal(t, `{"price":12}`, msg.Content)

	failed := ToolResult{ToolCallID: "c2", Name: "echo", Error: "boom"}
	msg = failed.ToMessage()
	assert.Equal(t, "Error: boom", msg.Content)
}

func TestToolResult_Observation(t *testing.T) {
	ok := ToolResult{Name: "stock_price", Result: json.RawMessage(`{"price":12}`)}
	assert.Equal(t, `stock_price: {"price":12}`, ok.Observation())

	failed := ToolResult{Name: "stock_price", Error: "boom"}
	assert.Equal(t, "stock_price: Error: boom", failed.Observation())
}
