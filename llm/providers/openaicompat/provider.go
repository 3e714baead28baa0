// Package openaicompat implements llm.Provider against any backend that
// speaks the OpenAI chat-completions wire format (OpenAI, DeepSeek, Qwen
// via DashScope compatible mode, vLLM, Ollama, LM Studio).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crewline/crewline/internal/tlsutil"
	"github.com/crewline/crewline/llm"
)

// Config configures a chat-completions endpoint.
type Config struct {
	Name    string        `json:"name,omitempty" yaml:"name,omitempty"` // provider label in logs and errors
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Keys optionally supplies rotating credentials. When set it wins
	// over APIKey: each request selects a key and reports the outcome
	// back so the source can steer away from failing keys.
	Keys llm.KeySource `json:"-" yaml:"-"`
}

// Provider is an llm.Provider backed by an OpenAI-compatible HTTP API.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a provider. BaseURL must be set; everything else has
// workable defaults.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "openai-compat"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger.With(zap.String("component", "llm.provider"), zap.String("provider", cfg.Name)),
	}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

// HealthCheck probes the models listing endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Error: err.Error()}, err
	}
	key, err := p.selectKey(ctx)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Error: err.Error()}, err
	}
	p.authorize(httpReq, key)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrMsg(resp.Body)
		err := fmt.Errorf("%s health check failed: status=%d msg=%s", p.cfg.Name, resp.StatusCode, msg)
		return &llm.HealthStatus{Healthy: false, Latency: latency, Error: err.Error()}, err
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Completion issues a non-streaming chat-completions call.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body := wireRequest{
		Model:       chooseModel(req.Model, p.cfg.Model),
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if req.ToolChoice != "" {
		body.ToolChoice = req.ToolChoice
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewError(llm.ErrInvalidRequest, fmt.Sprintf("encode request: %v", err)).
			WithProvider(p.cfg.Name)
	}

	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, llm.NewError(llm.ErrInvalidRequest, err.Error()).WithProvider(p.cfg.Name)
	}
	key, err := p.selectKey(ctx)
	if err != nil {
		if errors.Is(err, llm.ErrAllKeysUnhealthy) {
			return nil, llm.NewError(llm.ErrRateLimited, err.Error()).
				WithProvider(p.cfg.Name).WithRetryable(true)
		}
		return nil, llm.NewError(llm.ErrUnauthorized, err.Error()).WithProvider(p.cfg.Name)
	}
	p.authorize(httpReq, key)
	if req.TraceID != "" {
		httpReq.Header.Set("X-Trace-Id", req.TraceID)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.reportKey(ctx, key, false, err.Error())
		if ctx.Err() == context.DeadlineExceeded {
			return nil, llm.NewError(llm.ErrUpstreamTimeout, err.Error()).
				WithProvider(p.cfg.Name).WithRetryable(true)
		}
		return nil, llm.NewError(llm.ErrUpstreamError, err.Error()).
			WithProvider(p.cfg.Name).WithHTTPStatus(http.StatusBadGateway).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		perr := mapError(resp.StatusCode, msg, p.cfg.Name)
		p.reportKey(ctx, key, false, msg)
		p.logger.Warn("completion failed",
			zap.String("model", body.Model),
			zap.Int("status", resp.StatusCode),
			zap.String("code", string(perr.Code)))
		return nil, perr
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		p.reportKey(ctx, key, false, "malformed response")
		return nil, llm.NewError(llm.ErrMalformedResponse, fmt.Sprintf("decode response: %v", err)).
			WithProvider(p.cfg.Name).WithHTTPStatus(resp.StatusCode).WithRetryable(true)
	}
	p.reportKey(ctx, key, true, "")

	out := toChatResponse(wire, p.cfg.Name)
	p.logger.Debug("completion ok",
		zap.String("model", out.Model),
		zap.Int("choices", len(out.Choices)),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return out, nil
}

// selectKey resolves the credential for one request. A nil key means
// the static APIKey, if any, is in effect.
func (p *Provider) selectKey(ctx context.Context) (*llm.ProviderKey, error) {
	if p.cfg.Keys == nil {
		return nil, nil
	}
	return p.cfg.Keys.SelectKey(ctx)
}

func (p *Provider) authorize(req *http.Request, key *llm.ProviderKey) {
	switch {
	case key != nil:
		req.Header.Set("Authorization", "Bearer "+key.Secret)
	case p.cfg.APIKey != "":
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

// reportKey feeds the call outcome back to the key source.
func (p *Provider) reportKey(ctx context.Context, key *llm.ProviderKey, ok bool, errMsg string) {
	if p.cfg.Keys == nil || key == nil {
		return
	}
	var err error
	if ok {
		err = p.cfg.Keys.RecordSuccess(ctx, key.ID)
	} else {
		err = p.cfg.Keys.RecordFailure(ctx, key.ID, errMsg)
	}
	if err != nil {
		p.logger.Warn("record key outcome failed", zap.Uint("key_id", key.ID), zap.Error(err))
	}
}

// chooseModel resolves the model for a request: the per-request model
// wins, then the configured one, then a last-resort default.
func chooseModel(requested, configured string) string {
	if requested != "" {
		return requested
	}
	if configured != "" {
		return configured
	}
	return "gpt-4o-mini"
}

// Wire types for the chat-completions format. Tool definitions and tool
// calls use distinct function payloads: definitions carry a JSON Schema
// under parameters, calls carry serialized arguments.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type wireFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  interface{}   `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      wireMessage `json:"message"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

type wireErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func convertMessages(msgs []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func convertTools(tools []llm.ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func toChatResponse(wire wireResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(wire.Choices))
	for _, c := range wire.Choices {
		msg := llm.Message{
			Role:    llm.RoleAssistant,
			Content: c.Message.Content,
			Name:    c.Message.Name,
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}
	resp := &llm.ChatResponse{
		ID:       wire.ID,
		Provider: provider,
		Model:    wire.Model,
		Choices:  choices,
	}
	if wire.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
	}
	if wire.Created != 0 {
		resp.CreatedAt = time.Unix(wire.Created, 0)
	}
	return resp
}

func mapError(status int, msg, provider string) *llm.Error {
	switch status {
	case http.StatusUnauthorized:
		return &llm.Error{Code: llm.ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusForbidden:
		return &llm.Error{Code: llm.ErrForbidden, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &llm.Error{Code: llm.ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "billing") {
			return &llm.Error{Code: llm.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusGatewayTimeout:
		return &llm.Error{Code: llm.ErrUpstreamTimeout, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case 529: // overloaded, Anthropic-style status some gateways forward
		return &llm.Error{Code: llm.ErrModelOverloaded, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var errResp wireErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}
