package learning

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPhrases(t *testing.T) {
	got := extractPhrases("I am so very happy today and tomorrow too")
	assert.Equal(t, []string{"so very", "very happy", "happy today", "today and", "and tomorrow"}, got)

	assert.Empty(t, extractPhrases("hi"))
	assert.Empty(t, extractPhrases("a b c d"))
}

func TestExtractTermsAndDepth(t *testing.T) {
	assert.Equal(t, []string{"api", "docker", "security"},
		extractTerms("Secure the API with Docker; SECURITY first"))

	assert.Equal(t, "low", technicalDepth("hello", "python"))
	assert.Equal(t, "medium", technicalDepth("the api", "a sql database"))
	assert.Equal(t, "high", technicalDepth("api server on aws", "docker and kubernetes"))
}

func TestExtractKnowledge(t *testing.T) {
	response := "Use this:\n```go\nfmt.Println(1)\n```\nDocs at https://go.dev/doc and " +
		strings.Repeat("word ", 60)

	snippets := extractKnowledge(response)
	require.Len(t, snippets, 3)

	assert.Equal(t, "```go\nfmt.Println(1)\n```", snippets[0].content)
	assert.Equal(t, "code_snippet", snippets[0].typ)
	assert.Equal(t, []string{"code", "technical"}, snippets[0].tags)

	assert.Equal(t, "https://go.dev/doc", snippets[1].content)
	assert.InDelta(t, 0.7, snippets[1].importance, 1e-9)
	assert.Equal(t, []string{"reference", "external"}, snippets[1].tags)

	assert.Equal(t, "technical_explanation", snippets[2].typ)
	assert.Equal(t, response, snippets[2].content)

	long := strings.Repeat("lorem ipsum ", 60)
	snippets = extractKnowledge(long)
	require.Len(t, snippets, 1)
	assert.Equal(t, long[:500]+"...", snippets[0].content)

	assert.Empty(t, extractKnowledge("short answer"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abc", 2))
	assert.Equal(t, "héé...", truncate("hééllo", 3))
}

func TestPersonality_ApplyCaps(t *testing.T) {
	p := newPersonality("agentA")
	now := time.Now()

	for i := 0; i < 12; i++ {
		p.apply(exchange{
			formality: float64(i % 2),
			phrases:   []string{fmt.Sprintf("phrase %02da", i), fmt.Sprintf("phrase %02db", i), fmt.Sprintf("phrase %02dc", i), fmt.Sprintf("phrase %02dd", i), fmt.Sprintf("phrase %02de", i)},
		}, now)
	}

	assert.Len(t, p.CommunicationStyle.Formality, formalityWindow)
	assert.InDelta(t, 0.5, p.CommunicationStyle.AvgFormality, 1e-9)
	assert.Len(t, p.LearnedPhrases, maxLearnedPhrases)
	assert.Equal(t, "phrase 11e", p.LearnedPhrases[len(p.LearnedPhrases)-1])
	assert.Equal(t, "phrase 02a", p.LearnedPhrases[0])
	assert.Equal(t, []string{"phrase 11d", "phrase 11e"}, p.RecentPhrases(2))
	assert.Equal(t, 12, p.ResponsePatterns.Exchanges)
	assert.Equal(t, now, p.LastUpdated)
}

func TestTopTerms(t *testing.T) {
	counts := map[string]int{}
	for i := 0; i < 22; i++ {
		counts[fmt.Sprintf("term%02d", i)] = 1
	}
	counts["term21"] = 5

	kept := topTerms(counts, 20)
	assert.Len(t, kept, 20)
	assert.Equal(t, 5, kept["term21"])
	assert.Contains(t, kept, "term00")
	assert.Contains(t, kept, "term18")
	assert.NotContains(t, kept, "term19")
	assert.NotContains(t, kept, "term20")
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := newPersonality("agentA")
	for i := 0; i < 3; i++ {
		p.apply(exchange{
			formality:     0.25,
			phrases:       []string{"one two", "three four", "five six", "seven eight"},
			terms:         []string{"api"},
			effectiveness: 0.9,
			responseWords: 12,
			expertise:     []string{"backend"},
		}, time.Now())
	}

	content, err := p.snapshot()
	require.NoError(t, err)
	assert.Contains(t, content, `"preferred_terms":{"api":3}`)

	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := parseSnapshot("agentA", content, updated)
	require.NoError(t, err)
	assert.Equal(t, p.LearnedPhrases[2:], got.LearnedPhrases)
	assert.Equal(t, p.CommunicationStyle, got.CommunicationStyle)
	assert.Equal(t, p.ResponsePatterns, got.ResponsePatterns)
	assert.Equal(t, updated, got.LastUpdated)

	_, err = parseSnapshot("agentA", "[]", updated)
	assert.Error(t, err)

	empty, err := parseSnapshot("agentA", "{}", updated)
	require.NoError(t, err)
	assert.NotNil(t, empty.TechnicalPreferences.PreferredTerms)
	assert.NotNil(t, empty.LearnedPhrases)
}
