// Package tokenizer provides a uniform token-counting interface backed by
// tiktoken for OpenAI-family models, with a character-ratio estimator as
// the fallback. The engine uses it for prompt accounting and for keeping
// assembled context blobs inside a configured token budget.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// Tokenizer is the uniform token-counting interface.
type Tokenizer interface {
	// CountTokens returns the token count for the given text.
	CountTokens(text string) (int, error)

	// CountMessages returns the total token count for a message list,
	// including per-message overhead (role markers, separators).
	CountMessages(messages []Message) (int, error)

	// MaxTokens returns the model's maximum context length.
	MaxTokens() int

	// Name returns the tokenizer name.
	Name() string
}

// Message is a lightweight message structure used by this package to
// avoid a dependency cycle with the llm package.
type Message struct {
	Role    string
	Content string
}

var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// RegisterTokenizer registers a tokenizer for the given model name.
func RegisterTokenizer(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// GetTokenizer returns the tokenizer registered for the given model.
// It also tries prefix matching, so "gpt-4o" matches "gpt-4o-mini".
func GetTokenizer(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}

	for prefix, t := range modelTokenizers {
		if strings.HasPrefix(model, prefix) {
			return t, nil
		}
	}

	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// ForModel returns the registered tokenizer for the model, falling back
// to a generic estimator when none is registered.
func ForModel(model string) Tokenizer {
	t, err := GetTokenizer(model)
	if err != nil {
		return NewEstimatorTokenizer(model, 0)
	}
	return t
}

// Truncate cuts text so it fits within maxTokens according to tok,
// appending a marker when anything was dropped. The boolean reports
// whether truncation happened. maxTokens <= 0 disables truncation.
func Truncate(tok Tokenizer, text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}
	count, err := tok.CountTokens(text)
	if err != nil || count <= maxTokens {
		return text, false
	}

	const marker = "\n[... truncated to fit context budget ...]"
	markerTokens, err := tok.CountTokens(marker)
	if err != nil {
		return text, false
	}

	// One extra token of slack absorbs boundary effects when the prefix
	// and marker are counted as a single string.
	budget := maxTokens - markerTokens - 1
	if budget < 1 {
		budget = 1
	}

	runes := []rune(text)

	// Binary search for the longest prefix within budget.
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		c, err := tok.CountTokens(string(runes[:mid]))
		if err != nil {
			return text, false
		}
		if c <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	out := string(runes[:lo]) + marker
	for lo > 0 {
		c, err := tok.CountTokens(out)
		if err != nil || c <= maxTokens {
			break
		}
		lo = lo * 9 / 10
		out = string(runes[:lo]) + marker
	}
	return out, true
}
