package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer adapts tiktoken for OpenAI-family models. Encoding
// initialization is lazy; when it fails (unknown encoding, missing
// vocabulary files) counting silently degrades to the estimator so token
// accounting never blocks an agent run.
type TiktokenTokenizer struct {
	model     string
	encoding  string
	maxTokens int

	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
	fallback *EstimatorTokenizer
}

// modelEncodings maps model names to their tiktoken encoding and context size.
var modelEncodings = map[string]struct {
	encoding  string
	maxTokens int
}{
	"gpt-4o":        {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini":   {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4-turbo":   {encoding: "cl100k_base", maxTokens: 128000},
	"gpt-4":         {encoding: "cl100k_base", maxTokens: 8192},
	"gpt-3.5-turbo": {encoding: "cl100k_base", maxTokens: 16385},
}

// Known OpenAI-family models are registered up front. Encoding
// initialization stays lazy, so this costs nothing until a count.
func init() {
	for model := range modelEncodings {
		RegisterTokenizer(model, NewTiktokenTokenizer(model))
	}
}

// NewTiktokenTokenizer creates a tokenizer for the given model. Unknown
// models default to the cl100k_base encoding with a 8192-token context.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	encoding := "cl100k_base"
	maxTokens := 8192
	if m, ok := modelEncodings[model]; ok {
		encoding = m.encoding
		maxTokens = m.maxTokens
	}
	return &TiktokenTokenizer{
		model:     model,
		encoding:  encoding,
		maxTokens: maxTokens,
		fallback:  NewEstimatorTokenizer(model, maxTokens),
	}
}

func (t *TiktokenTokenizer) init() {
	t.once.Do(func() {
		t.enc, t.initErr = tiktoken.GetEncoding(t.encoding)
	})
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	t.init()
	if t.initErr != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	total := 0
	for _, msg := range messages {
		tokens, err := t.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		total += tokens + 4
	}
	total += 3
	return total, nil
}

func (t *TiktokenTokenizer) MaxTokens() int {
	return t.maxTokens
}

func (t *TiktokenTokenizer) Name() string {
	return "tiktoken:" + t.encoding
}
