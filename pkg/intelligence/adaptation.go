package intelligence

import "strings"

const (
	adaptationPrefix    = "Adapt your communication style: "
	maintainStyleNotice = "Maintain your current communication style"
)

// patternAdvice holds the instruction for patterns worth adopting.
var patternAdvice = map[string]string{
	PatternAsksQuestions: "Ask clarifying questions when appropriate",
	PatternUsesLists:     "Use bullet points or numbered lists for clarity",
	PatternIncludesCode:  "Include code examples when relevant",
}

// AdaptationPrompt returns instructions that move current towards target.
//
// Example:
//
//	prompt := intelligence.AdaptationPrompt(userStyle, agentStyle)
//	// "Adapt your communication style: Use more casual and friendly language; ..."
func AdaptationPrompt(target, current *StyleAnalysis) string {
	var items []string

	switch {
	case target.FormalityScore > current.FormalityScore:
		items = append(items, "Use more formal language and professional tone")
	case target.FormalityScore < current.FormalityScore:
		items = append(items, "Use more casual and friendly language")
	}

	switch {
	case target.TechnicalDepth == DepthHigh && current.TechnicalDepth != DepthHigh:
		items = append(items, "Include more technical details and terminology")
	case target.TechnicalDepth == DepthLow && current.TechnicalDepth != DepthLow:
		items = append(items, "Use simpler language and fewer technical terms")
	}

	switch {
	case target.ResponseLength == LengthLong && current.ResponseLength != LengthLong:
		items = append(items, "Provide more detailed and comprehensive responses")
	case target.ResponseLength == LengthShort && current.ResponseLength != LengthShort:
		items = append(items, "Keep responses concise and to the point")
	}

	if target.CommunicationTone != current.CommunicationTone {
		items = append(items, "Adopt a "+string(target.CommunicationTone)+" communication tone")
	}

	for _, pattern := range target.CommonPatterns {
		if contains(current.CommonPatterns, pattern) {
			continue
		}
		if advice, ok := patternAdvice[pattern]; ok {
			items = append(items, advice)
		}
	}

	if len(items) == 0 {
		return maintainStyleNotice
	}
	return adaptationPrefix + strings.Join(items, "; ")
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
