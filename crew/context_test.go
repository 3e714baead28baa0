package crew

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBuildContextBlob_Empty(t *testing.T) {
	assert.Equal(t, "", BuildContextBlob(nil))
	assert.Equal(t, "", BuildContextBlob([]ContextEntry{}))
}

func TestBuildContextBlob_OrderedConcatenation(t *testing.T) {
	blob := BuildContextBlob([]ContextEntry{
		{TaskID: "financials", Output: "revenue grew 12%"},
		{TaskID: "news", Output: "three positive headlines"},
	})

	assert.Equal(t, "[financials]\nrevenue grew 12%\n\n[news]\nthree positive headlines\n", blob)
}

func TestBuildContextBlob_DegradedMarker(t *testing.T) {
	blob := BuildContextBlob([]ContextEntry{
		{TaskID: "news", Output: "partial headlines", Degraded: true},
	})

	assert.Contains(t, blob, "[news] (degraded: best-effort output)")
	assert.Contains(t, blob, "partial headlines")
}

func TestBuildContextBlob_TrimsTrailingNewlines(t *testing.T) {
	blob := BuildContextBlob([]ContextEntry{
		{TaskID: "a", Output: "line one\nline two\n\n\n"},
		{TaskID: "b", Output: "next"},
	})

	assert.Equal(t, "[a]\nline one\nline two\n\n[b]\nnext\n", blob)
}

func TestBuildContextBlob_HeadersStayInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "n")

		entries := make([]ContextEntry, 0, n)
		for i := 0; i < n; i++ {
			entries = append(entries, ContextEntry{
				TaskID:   fmt.Sprintf("task%d", i),
				Output:   rapid.StringMatching(`[a-z ]{0,30}`).Draw(t, fmt.Sprintf("out%d", i)),
				Degraded: rapid.Bool().Draw(t, fmt.Sprintf("deg%d", i)),
			})
		}

		blob := BuildContextBlob(entries)

		prev := -1
		for i := 0; i < n; i++ {
			header := fmt.Sprintf("[task%d]", i)
			idx := strings.Index(blob, header)
			if idx < 0 {
				t.Fatalf("header %s missing from blob %q", header, blob)
			}
			if idx <= prev {
				t.Fatalf("header %s out of order in blob %q", header, blob)
			}
			prev = idx
		}
	})
}

func TestFitContextBlob_NoBudgetLeavesBlobAlone(t *testing.T) {
	blob := strings.Repeat("a lot of context ", 100)

	out, truncated := fitContextBlob(blob, "gpt-4o-mini", 0)
	assert.False(t, truncated)
	assert.Equal(t, blob, out)
}

func TestFitContextBlob_TruncatesOverBudget(t *testing.T) {
	blob := strings.Repeat("word ", 2000)

	out, truncated := fitContextBlob(blob, "unknown-model", 50)
	assert.True(t, truncated)
	assert.Less(t, len(out), len(blob))
	assert.Contains(t, out, "truncated")
}
