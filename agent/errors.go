package agent

import "errors"

var (
	// ErrProviderNotSet reports an agent configured without an LLM backend.
	ErrProviderNotSet = errors.New("llm provider not set")

	// ErrNativeToolsRequired reports a tool-carrying agent bound to a
	// backend without native function calling.
	ErrNativeToolsRequired = errors.New("backend does not support native function calling")
)
