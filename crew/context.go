package crew

import (
	"fmt"
	"strings"

	"github.com/crewline/crewline/llm/tokenizer"
)

// ContextEntry is one upstream task output feeding a downstream task.
type ContextEntry struct {
	TaskID   string
	Output   string
	Degraded bool
}

// BuildContextBlob concatenates upstream outputs in the order given,
// each under a bracketed header naming the producing task. Degraded
// outputs are marked so the consuming agent can weigh them accordingly.
// An empty entry list yields an empty blob.
func BuildContextBlob(entries []ContextEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		if e.Degraded {
			fmt.Fprintf(&b, "[%s] (degraded: best-effort output)\n", e.TaskID)
		} else {
			fmt.Fprintf(&b, "[%s]\n", e.TaskID)
		}
		b.WriteString(strings.TrimRight(e.Output, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// fitContextBlob trims the blob to the token budget using the model's
// tokenizer. A budget of zero or less leaves the blob untouched.
func fitContextBlob(blob, model string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || blob == "" {
		return blob, false
	}
	return tokenizer.Truncate(tokenizer.ForModel(model), blob, maxTokens)
}
