package learning

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/oceanbase/agentmem-go/pkg/core"
)

// CountedTerms feed the effectiveness score and the technical depth grade.
var CountedTerms = []string{
	"api", "database", "server", "client", "frontend", "backend",
	"react", "node", "python", "javascript", "sql", "aws", "cloud",
	"docker", "kubernetes", "microservices", "architecture",
}

// ExtractedTerms are recorded in technical learning entries and personality
// term preferences.
var ExtractedTerms = append(append([]string{}, CountedTerms...),
	"deployment", "scalability", "performance", "security", "authentication", "authorization",
)

const (
	maxPhrasesPerExchange = 5
	minPhraseLength       = 5

	explanationMinWords = 50
	explanationMaxChars = 500

	promptSnippetChars = 200
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	urlRe       = regexp.MustCompile(`https?://[^\s]+`)
)

// countTerms counts the counted terms present in text as substrings.
func countTerms(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, term := range CountedTerms {
		if strings.Contains(lower, term) {
			n++
		}
	}
	return n
}

// extractTerms returns the extracted terms present in text, in list order.
func extractTerms(text string) []string {
	lower := strings.ToLower(text)
	found := make([]string, 0)
	for _, term := range ExtractedTerms {
		if strings.Contains(lower, term) {
			found = append(found, term)
		}
	}
	return found
}

// EffectivenessScore grades a response against the message it answers.
//
// The score starts at 0.5 and gains 0.2 when the response is between half
// and twice the message length in words, 0.2 when both sides use technical
// terms, and 0.1 when a question gets an answer containing yes or no.
func EffectivenessScore(userMessage, response string) float64 {
	score := 0.5

	userWords := len(strings.Fields(userMessage))
	responseWords := len(strings.Fields(response))
	denominator := userWords
	if denominator < 1 {
		denominator = 1
	}
	ratio := float64(responseWords) / float64(denominator)
	if ratio >= 0.5 && ratio <= 2.0 {
		score += 0.2
	}

	if countTerms(userMessage) > 0 && countTerms(response) > 0 {
		score += 0.2
	}

	if strings.Contains(userMessage, "?") {
		lower := strings.ToLower(response)
		if strings.Contains(lower, "yes") || strings.Contains(lower, "no") {
			score += 0.1
		}
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

func technicalDepth(userMessage, response string) string {
	total := countTerms(userMessage) + countTerms(response)
	switch {
	case total >= 5:
		return "high"
	case total >= 2:
		return "medium"
	default:
		return "low"
	}
}

// extractPhrases returns up to five adjacent word pairs longer than five
// characters.
func extractPhrases(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	phrases := make([]string, 0, maxPhrasesPerExchange)
	for i := 0; i+1 < len(words) && len(phrases) < maxPhrasesPerExchange; i++ {
		phrase := words[i] + " " + words[i+1]
		if utf8.RuneCountInString(phrase) > minPhraseLength {
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}

type knowledgeSnippet struct {
	content    string
	importance float64
	typ        string
	tags       []string
}

// extractKnowledge pulls code blocks, URLs and a long-form excerpt out of a
// response, in that order.
func extractKnowledge(response string) []knowledgeSnippet {
	snippets := make([]knowledgeSnippet, 0)
	for _, code := range codeBlockRe.FindAllString(response, -1) {
		snippets = append(snippets, knowledgeSnippet{
			content: code, importance: 0.9, typ: "code_snippet", tags: []string{"code", "technical"},
		})
	}
	for _, url := range urlRe.FindAllString(response, -1) {
		snippets = append(snippets, knowledgeSnippet{
			content: url, importance: 0.7, typ: "reference_url", tags: []string{"reference", "external"},
		})
	}
	if len(strings.Fields(response)) > explanationMinWords {
		snippets = append(snippets, knowledgeSnippet{
			content:    truncate(response, explanationMaxChars),
			importance: 0.6,
			typ:        "technical_explanation",
			tags:       []string{"explanation", "technical"},
		})
	}
	return snippets
}

func (s knowledgeSnippet) storeOptions() []core.StoreOption {
	return []core.StoreOption{
		core.WithImportance(s.importance),
		core.WithMetadata(map[string]interface{}{"type": s.typ}),
		core.WithTags(s.tags...),
	}
}

// truncate cuts s to max characters, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
