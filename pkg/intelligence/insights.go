package intelligence

// Insights aggregates the styles of several conversations.
type Insights struct {
	AvgFormality            float64        `json:"avg_formality"`
	PreferredTechnicalDepth TechnicalDepth `json:"preferred_technical_depth"`
	PreferredResponseLength ResponseLength `json:"preferred_response_length"`
	PreferredTone           Tone           `json:"preferred_tone"`
	CommonPatterns          []string       `json:"common_patterns"`
	PersonalityTraits       []string       `json:"personality_traits"`
	ConversationCount       int            `json:"conversation_count"`
}

// ExtractInsights analyzes every text and aggregates the results.
//
// Preferred values are the most frequent ones, ties going to the value seen
// first. Patterns and traits are unions in first-seen order. It returns nil
// for no texts.
func (a *Analyzer) ExtractInsights(texts []string) *Insights {
	if len(texts) == 0 {
		return nil
	}

	var (
		sumFormality float64
		depths       = make([]string, 0, len(texts))
		lengths      = make([]string, 0, len(texts))
		tones        = make([]string, 0, len(texts))
		patterns     = newOrderedSet()
		traits       = newOrderedSet()
	)
	for _, text := range texts {
		s := a.Analyze(text)
		sumFormality += s.FormalityScore
		depths = append(depths, string(s.TechnicalDepth))
		lengths = append(lengths, string(s.ResponseLength))
		tones = append(tones, string(s.CommunicationTone))
		patterns.add(s.CommonPatterns...)
		traits.add(s.PersonalityTraits...)
	}

	return &Insights{
		AvgFormality:            sumFormality / float64(len(texts)),
		PreferredTechnicalDepth: TechnicalDepth(mode(depths)),
		PreferredResponseLength: ResponseLength(mode(lengths)),
		PreferredTone:           Tone(mode(tones)),
		CommonPatterns:          patterns.values,
		PersonalityTraits:       traits.values,
		ConversationCount:       len(texts),
	}
}

// mode returns the most frequent value; the earliest wins ties.
func mode(values []string) string {
	counts := make(map[string]int, len(values))
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

type orderedSet struct {
	seen   map[string]struct{}
	values []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), values: make([]string, 0)}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.values = append(s.values, v)
	}
}
