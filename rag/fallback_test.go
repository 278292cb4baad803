package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackAnswer_StablePerQuery(t *testing.T) {
	a1 := FallbackAnswer("do you ship to mars", "Ava", "Acme", nil)
	a2 := FallbackAnswer("do you ship to mars", "Ava", "Acme", nil)
	assert.Equal(t, a1, a2)

	// 等价问句（大小写 / 标点）落在同一模板
	a3 := FallbackAnswer("Do you ship to Mars?", "Ava", "Acme", nil)
	assert.Equal(t, a1, a3)

	assert.Contains(t, a1, "Acme")
	assert.Contains(t, a1, "- Ava")
}

func TestFallbackAnswer_TemplatesRotate(t *testing.T) {
	queries := []string{
		"do you ship to mars",
		"what color is the office",
		"can i bring my dog",
		"is there parking nearby",
		"do you accept bitcoin",
		"who won the world cup",
		"how tall is the building",
	}

	seen := make(map[string]bool)
	for _, q := range queries {
		seen[FallbackAnswer(q, "", "Acme", nil)] = true
	}
	// 不同问句分散到多个模板
	assert.Greater(t, len(seen), 1)
}

func TestFallbackAnswer_IncludesBestHint(t *testing.T) {
	best := &ScoredChunk{
		Unit: RetrievalUnit{
			SourceURL: "https://example.com/shipping",
			PageTitle: "Shipping Policy",
			Text:      "We ship within the EU.",
		},
		Score: 0.31,
	}

	answer := FallbackAnswer("do you ship to mars", "Ava", "Acme", best)
	assert.Contains(t, answer, "Shipping Policy")

	// 没有标题时回退到 URL
	best.Unit.PageTitle = ""
	answer = FallbackAnswer("do you ship to mars", "Ava", "Acme", best)
	assert.Contains(t, answer, "https://example.com/shipping")
}

func TestFallbackAnswer_Defaults(t *testing.T) {
	answer := FallbackAnswer("anything", "", "", nil)
	assert.Contains(t, answer, "this site")
	assert.NotContains(t, answer, " - ")
}

func TestExtractQASuggestions(t *testing.T) {
	markdown := `# Acme Plumbing

We offer a full range of plumbing services for homes and businesses.
Our emergency line is available 24 hours a day for urgent repairs.
You can contact us by phone at 555-0100 or email hello@acme.test.
`

	suggestions := ExtractQASuggestions(markdown, "https://acme.test/")
	require.NotEmpty(t, suggestions)

	byQuestion := make(map[string]QASuggestion)
	for _, s := range suggestions {
		byQuestion[s.Question] = s
		assert.Equal(t, "https://acme.test/", s.SourceURL)
		assert.NotEmpty(t, s.SourceContent)
	}

	services, ok := byQuestion["What services do you offer?"]
	require.True(t, ok)
	assert.Contains(t, services.SourceContent, "plumbing services")

	_, ok = byQuestion["Do you offer emergency services?"]
	assert.True(t, ok)
	_, ok = byQuestion["How can I contact you?"]
	assert.True(t, ok)

	// 未提及价格，不产生价格建议
	_, ok = byQuestion["What are your prices?"]
	assert.False(t, ok)
}

func TestExtractQASuggestions_Empty(t *testing.T) {
	assert.Nil(t, ExtractQASuggestions("", "https://acme.test/"))
	assert.Nil(t, ExtractQASuggestions("   \n ", "https://acme.test/"))
}
