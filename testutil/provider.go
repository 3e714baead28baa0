package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/crewline/crewline/llm"
)

// Step is one scripted provider turn.
type Step struct {
	Content   string
	ToolCalls []llm.ToolCall
	Err       error
	Usage     *llm.ChatUsage
}

// Say scripts a plain text answer.
func Say(content string) Step {
	return Step{Content: content}
}

// Call scripts a single tool call with the given JSON arguments.
func Call(tool, args string) Step {
	return CallID("call_"+tool, tool, args)
}

// CallID scripts a single tool call with an explicit call id.
func CallID(id, tool, args string) Step {
	return Step{ToolCalls: []llm.ToolCall{{
		ID:        id,
		Name:      tool,
		Arguments: json.RawMessage(args),
	}}}
}

// Fail scripts a provider error.
func Fail(err error) Step {
	return Step{Err: err}
}

// ScriptedProvider replays steps in order and records every request.
// Exhausting the script is an error unless RepeatLast is enabled.
type ScriptedProvider struct {
	mu         sync.Mutex
	name       string
	native     bool
	steps      []Step
	pos        int
	repeatLast bool
	requests   []*llm.ChatRequest
}

// NewScriptedProvider creates a provider that will play steps in order.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{
		name:   "scripted",
		native: true,
		steps:  steps,
	}
}

// WithName overrides the provider name.
func (p *ScriptedProvider) WithName(name string) *ScriptedProvider {
	p.name = name
	return p
}

// WithoutNativeTools makes the provider report no native tool support.
func (p *ScriptedProvider) WithoutNativeTools() *ScriptedProvider {
	p.native = false
	return p
}

// RepeatLast keeps replaying the final step once the script runs out.
func (p *ScriptedProvider) RepeatLast() *ScriptedProvider {
	p.repeatLast = true
	return p
}

func (p *ScriptedProvider) Name() string { return p.name }

func (p *ScriptedProvider) SupportsNativeFunctionCalling() bool { return p.native }

func (p *ScriptedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

func (p *ScriptedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Snapshot the request so later transcript growth can't mutate it.
	snap := *req
	snap.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, &snap)

	idx := p.pos
	if idx >= len(p.steps) {
		if !p.repeatLast || len(p.steps) == 0 {
			return nil, llm.NewError(llm.ErrUpstreamError,
				fmt.Sprintf("script exhausted after %d steps", len(p.steps))).
				WithProvider(p.name)
		}
		idx = len(p.steps) - 1
	}
	p.pos++

	step := p.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}

	usage := llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}
	if step.Usage != nil {
		usage = *step.Usage
	}

	finish := "stop"
	if len(step.ToolCalls) > 0 {
		finish = "tool_calls"
	}

	return &llm.ChatResponse{
		ID:       fmt.Sprintf("scripted-%d", p.pos),
		Provider: p.name,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: finish,
			Message: llm.Message{
				Role:      llm.RoleAssistant,
				Content:   step.Content,
				ToolCalls: step.ToolCalls,
			},
		}},
		Usage:     usage,
		CreatedAt: time.Now(),
	}, nil
}

// CallCount returns how many completions were issued.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns snapshots of every request received so far.
func (p *ScriptedProvider) Requests() []*llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.ChatRequest(nil), p.requests...)
}

// LastRequest returns the most recent request, or nil.
func (p *ScriptedProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}
