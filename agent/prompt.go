package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/crewline/crewline/llm"
)

// clarifyInstruction is appended as a user message before the single
// retry that follows a backend failure or an unusable response.
const clarifyInstruction = "The previous attempt to produce a response failed. " +
	"Provide your best final answer now as plain text, without calling any tools."

// buildSystemPrompt renders the persona, the run date, and the tool
// catalogue into the system message.
func buildSystemPrompt(role Role, schemas []llm.ToolSchema, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.\n", role.Name)
	if role.Goal != "" {
		fmt.Fprintf(&b, "\nYour goal: %s\n", role.Goal)
	}
	if role.Backstory != "" {
		fmt.Fprintf(&b, "\nYour backstory: %s\n", role.Backstory)
	}

	fmt.Fprintf(&b, "\nToday's date is %s.\n", now.Format("2006-01-02"))

	if len(schemas) > 0 {
		b.WriteString("\nYou have access to the following tools:\n")
		for _, s := range schemas {
			if s.Description != "" {
				fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
			} else {
				fmt.Fprintf(&b, "- %s\n", s.Name)
			}
		}
		b.WriteString("\nWork step by step. Call at most one tool per response when you need " +
			"more information. A tool message starting with \"Error:\" means that call failed; " +
			"adjust your arguments or pick another tool. Once you have gathered enough evidence, " +
			"reply with the final answer as plain text and do not call any tool.\n")
	} else {
		b.WriteString("\nAnswer from your own knowledge. Reply with the final answer as plain text.\n")
	}

	return b.String()
}

// buildUserPrompt renders the task description, the context produced by
// earlier tasks, and the expected output contract. An empty context blob
// omits the context section entirely.
func buildUserPrompt(description, contextBlob, expectedOutput string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", description)

	if contextBlob != "" {
		b.WriteString("\nContext from prior tasks:\n")
		b.WriteString(contextBlob)
		if !strings.HasSuffix(contextBlob, "\n") {
			b.WriteString("\n")
		}
	}

	if expectedOutput != "" {
		fmt.Fprintf(&b, "\nExpected output: %s\n", expectedOutput)
	}

	return b.String()
}
