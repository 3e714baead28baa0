package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crewline/crewline/llm"
)

func TestBuildSystemPrompt_PersonaAndTools(t *testing.T) {
	role := Role{
		Name:      "senior-financial-analyst",
		Goal:      "impress customers with thorough analysis",
		Backstory: "the most seasoned analyst on the desk",
	}
	schemas := []llm.ToolSchema{
		{Name: "stock_price", Description: "fetch the latest quote"},
		{Name: "stock_news"},
	}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	prompt := buildSystemPrompt(role, schemas, now)

	assert.Contains(t, prompt, "You are senior-financial-analyst.")
	assert.Contains(t, prompt, "Your goal: impress customers with thorough analysis")
	assert.Contains(t, prompt, "Your backstory: the most seasoned analyst on the desk")
	assert.Contains(t, prompt, "Today's date is 2026-03-01.")
	assert.Contains(t, prompt, "- stock_price: fetch the latest quote")
	assert.Contains(t, prompt, "- stock_news")
	assert.Contains(t, prompt, "at most one tool per response")
}

func TestBuildSystemPrompt_NoTools(t *testing.T) {
	prompt := buildSystemPrompt(Role{Name: "writer"}, nil, time.Now())

	assert.Contains(t, prompt, "Answer from your own knowledge")
	assert.NotContains(t, prompt, "following tools")
}

func TestBuildSystemPrompt_OptionalPersonaFields(t *testing.T) {
	prompt := buildSystemPrompt(Role{Name: "writer"}, nil, time.Now())

	assert.NotContains(t, prompt, "Your goal:")
	assert.NotContains(t, prompt, "Your backstory:")
}

func TestBuildUserPrompt_Full(t *testing.T) {
	prompt := buildUserPrompt(
		"Analyze RELIANCE fundamentals.",
		"[financial-data]\nrevenue grew 12%",
		"A one-page analysis memo.",
	)

	assert.Contains(t, prompt, "Task: Analyze RELIANCE fundamentals.")
	assert.Contains(t, prompt, "Context from prior tasks:")
	assert.Contains(t, prompt, "revenue grew 12%")
	assert.Contains(t, prompt, "Expected output: A one-page analysis memo.")
}

func TestBuildUserPrompt_EmptyContextOmitsSection(t *testing.T) {
	prompt := buildUserPrompt("Analyze RELIANCE fundamentals.", "", "")

	assert.NotContains(t, prompt, "Context from prior tasks")
	assert.NotContains(t, prompt, "Expected output")
}
