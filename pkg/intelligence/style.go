// Package intelligence analyzes the communication style of conversation text.
//
// Every function is a pure function of its input and the analyzer's
// vocabulary. Nothing here returns an error for valid input.
package intelligence

import (
	"math"
	"regexp"
	"strings"
)

// TechnicalDepth grades how technical a text is.
type TechnicalDepth string

const (
	DepthLow    TechnicalDepth = "low"
	DepthMedium TechnicalDepth = "medium"
	DepthHigh   TechnicalDepth = "high"
)

// ResponseLength buckets a text by word count.
type ResponseLength string

const (
	LengthShort  ResponseLength = "short"
	LengthMedium ResponseLength = "medium"
	LengthLong   ResponseLength = "long"
)

// Tone is the dominant communication tone.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneTechnical    Tone = "technical"
)

// TonePrecedence breaks ties between equally scored tones; earlier wins.
var TonePrecedence = []Tone{ToneFriendly, ToneProfessional, ToneTechnical}

// Communication pattern tags, reported in this order.
const (
	PatternAsksQuestions    = "asks_questions"
	PatternUsesExclamations = "uses_exclamations"
	PatternUsesLists        = "uses_lists"
	PatternIncludesCode     = "includes_code"
	PatternSharesLinks      = "shares_links"
	PatternUsesEmojis       = "uses_emojis"
)

const (
	highDepthTerms   = 5
	mediumDepthTerms = 2

	shortMaxWords  = 20
	mediumMaxWords = 100

	// traitThreshold is how many indicators of a trait must be present.
	traitThreshold = 2
)

var (
	numberedListRe = regexp.MustCompile(`\d+\.\s`)
	bulletListRe   = regexp.MustCompile(`[-*]\s`)
	inlineCodeRe   = regexp.MustCompile("`[^`]+`")
	linkRe         = regexp.MustCompile(`https?://`)
	emojiRe        = regexp.MustCompile(`[\x{1F600}-\x{1F64F}]`)
)

// StyleAnalysis describes the communication style of one text.
type StyleAnalysis struct {
	// FormalityScore is 0 for casual and 1 for formal text.
	FormalityScore    float64        `json:"formality_score"`
	TechnicalDepth    TechnicalDepth `json:"technical_depth"`
	ResponseLength    ResponseLength `json:"response_length"`
	CommunicationTone Tone           `json:"communication_tone"`
	CommonPatterns    []string       `json:"common_patterns"`
	PersonalityTraits []string       `json:"personality_traits"`
}

// Analyzer computes style analyses from a vocabulary.
//
// An Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	vocab  *Vocabulary
	formal []*regexp.Regexp
	casual []*regexp.Regexp
}

// NewAnalyzer creates an analyzer from vocab. A nil vocab uses the defaults.
func NewAnalyzer(vocab *Vocabulary) (*Analyzer, error) {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	formal, err := compilePatterns(vocab.FormalPatterns)
	if err != nil {
		return nil, err
	}
	casual, err := compilePatterns(vocab.CasualPatterns)
	if err != nil {
		return nil, err
	}
	return &Analyzer{vocab: vocab, formal: formal, casual: casual}, nil
}

// NewDefaultAnalyzer creates an analyzer with the built-in vocabulary.
func NewDefaultAnalyzer() *Analyzer {
	a, err := NewAnalyzer(DefaultVocabulary())
	if err != nil {
		// The built-in patterns are constants.
		panic(err)
	}
	return a
}

// Analyze returns the style analysis of text.
//
// Example:
//
//	analysis := intelligence.NewDefaultAnalyzer().Analyze("Hey! Can you fix my API?")
//	fmt.Println(analysis.CommunicationTone, analysis.CommonPatterns)
func (a *Analyzer) Analyze(text string) *StyleAnalysis {
	lower := strings.ToLower(text)
	return &StyleAnalysis{
		FormalityScore:    a.formality(lower),
		TechnicalDepth:    a.technicalDepth(lower),
		ResponseLength:    responseLength(text),
		CommunicationTone: a.tone(lower),
		CommonPatterns:    commonPatterns(lower),
		PersonalityTraits: a.personalityTraits(lower),
	}
}

// Formality returns the formality score of text alone.
func (a *Analyzer) Formality(text string) float64 {
	return a.formality(strings.ToLower(text))
}

// formality is the share of formal matches among all formal and casual
// matches, or 0.5 when neither occurs.
func (a *Analyzer) formality(lower string) float64 {
	formal := countMatches(a.formal, lower)
	casual := countMatches(a.casual, lower)
	if formal+casual == 0 {
		return 0.5
	}
	return float64(formal) / float64(formal+casual)
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range patterns {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}

func (a *Analyzer) technicalDepth(lower string) TechnicalDepth {
	total := 0
	for _, category := range a.vocab.TechnicalCategories {
		total += countPresent(category.Terms, lower)
	}
	switch {
	case total >= highDepthTerms:
		return DepthHigh
	case total >= mediumDepthTerms:
		return DepthMedium
	default:
		return DepthLow
	}
}

// TechnicalCategories returns the names of the vocabulary categories with at
// least one term present in text, in vocabulary order.
func (a *Analyzer) TechnicalCategories(text string) []string {
	lower := strings.ToLower(text)
	names := make([]string, 0)
	for _, category := range a.vocab.TechnicalCategories {
		if countPresent(category.Terms, lower) > 0 {
			names = append(names, category.Name)
		}
	}
	return names
}

func responseLength(text string) ResponseLength {
	words := len(strings.Fields(text))
	switch {
	case words <= shortMaxWords:
		return LengthShort
	case words <= mediumMaxWords:
		return LengthMedium
	default:
		return LengthLong
	}
}

// tone picks the tone with the most indicators present, ties resolved by
// TonePrecedence.
func (a *Analyzer) tone(lower string) Tone {
	counts := map[Tone]int{
		ToneFriendly:     countPresent(a.vocab.Tones.Friendly, lower),
		ToneProfessional: countPresent(a.vocab.Tones.Professional, lower),
		ToneTechnical:    countPresent(a.vocab.Tones.Technical, lower),
	}

	best := TonePrecedence[0]
	for _, t := range TonePrecedence[1:] {
		if counts[t] > counts[best] {
			best = t
		}
	}
	return best
}

func commonPatterns(text string) []string {
	patterns := make([]string, 0, 6)
	if strings.Contains(text, "?") {
		patterns = append(patterns, PatternAsksQuestions)
	}
	if strings.Contains(text, "!") {
		patterns = append(patterns, PatternUsesExclamations)
	}
	if numberedListRe.MatchString(text) || bulletListRe.MatchString(text) {
		patterns = append(patterns, PatternUsesLists)
	}
	if strings.Contains(text, "```") || inlineCodeRe.MatchString(text) {
		patterns = append(patterns, PatternIncludesCode)
	}
	if linkRe.MatchString(text) {
		patterns = append(patterns, PatternSharesLinks)
	}
	if emojiRe.MatchString(text) {
		patterns = append(patterns, PatternUsesEmojis)
	}
	return patterns
}

func (a *Analyzer) personalityTraits(lower string) []string {
	traits := make([]string, 0)
	for _, ti := range a.vocab.PersonalityIndicators {
		if countPresent(ti.Indicators, lower) >= traitThreshold {
			traits = append(traits, ti.Trait)
		}
	}
	return traits
}

// countPresent counts how many terms occur in text as substrings.
func countPresent(terms []string, text string) int {
	n := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			n++
		}
	}
	return n
}

// StyleComparison summarizes how two styles differ.
type StyleComparison struct {
	FormalityDifference      float64 `json:"formality_difference"`
	TechnicalDepthMatch      bool    `json:"technical_depth_match"`
	ResponseLengthMatch      bool    `json:"response_length_match"`
	ToneMatch                bool    `json:"tone_match"`
	CommonPatternsOverlap    int     `json:"common_patterns_overlap"`
	PersonalityTraitsOverlap int     `json:"personality_traits_overlap"`
}

// Compare returns the differences between two analyses.
func Compare(a, b *StyleAnalysis) *StyleComparison {
	return &StyleComparison{
		FormalityDifference:      math.Abs(a.FormalityScore - b.FormalityScore),
		TechnicalDepthMatch:      a.TechnicalDepth == b.TechnicalDepth,
		ResponseLengthMatch:      a.ResponseLength == b.ResponseLength,
		ToneMatch:                a.CommunicationTone == b.CommunicationTone,
		CommonPatternsOverlap:    overlap(a.CommonPatterns, b.CommonPatterns),
		PersonalityTraitsOverlap: overlap(a.PersonalityTraits, b.PersonalityTraits),
	}
}

// overlap counts distinct values present in both slices.
func overlap(a, b []string) int {
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a))
	n := 0
	for _, v := range a {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := inB[v]; ok {
			n++
		}
	}
	return n
}
