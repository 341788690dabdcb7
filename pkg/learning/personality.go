package learning

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/oceanbase/agentmem-go/pkg/intelligence"
)

const (
	formalityWindow      = 10
	maxPreferredTerms    = 20
	maxLearnedPhrases    = 50
	snapshotPhrases      = 10
	promptLearnedPhrases = 5
)

// CommunicationStyle is the rolling formality of the messages an agent saw.
type CommunicationStyle struct {
	Formality    []float64 `json:"formality"`
	AvgFormality float64   `json:"avg_formality"`
}

// TechnicalPreferences counts the technical terms users bring up.
type TechnicalPreferences struct {
	PreferredTerms map[string]int `json:"preferred_terms"`
}

// ResponsePatterns are running averages over the agent's responses.
type ResponsePatterns struct {
	Exchanges        int     `json:"exchanges"`
	AvgEffectiveness float64 `json:"avg_effectiveness"`
	AvgResponseWords float64 `json:"avg_response_words"`
}

// Personality is the learned behavior profile of one agent.
type Personality struct {
	AgentID              string               `json:"-"`
	CommunicationStyle   CommunicationStyle   `json:"communication_style"`
	TechnicalPreferences TechnicalPreferences `json:"technical_preferences"`
	ResponsePatterns     ResponsePatterns     `json:"response_patterns"`
	LearnedPhrases       []string             `json:"learned_phrases"`
	ExpertiseAreas       []string             `json:"expertise_areas"`
	LastUpdated          time.Time            `json:"-"`
}

func newPersonality(agentID string) *Personality {
	return &Personality{
		AgentID:              agentID,
		CommunicationStyle:   CommunicationStyle{Formality: []float64{}},
		TechnicalPreferences: TechnicalPreferences{PreferredTerms: map[string]int{}},
		LearnedPhrases:       []string{},
		ExpertiseAreas:       []string{},
	}
}

// Clone returns a deep copy of p.
func (p *Personality) Clone() *Personality {
	if p == nil {
		return nil
	}
	c := *p
	c.CommunicationStyle.Formality = append([]float64{}, p.CommunicationStyle.Formality...)
	c.TechnicalPreferences.PreferredTerms = make(map[string]int, len(p.TechnicalPreferences.PreferredTerms))
	for term, n := range p.TechnicalPreferences.PreferredTerms {
		c.TechnicalPreferences.PreferredTerms[term] = n
	}
	c.LearnedPhrases = append([]string{}, p.LearnedPhrases...)
	c.ExpertiseAreas = append([]string{}, p.ExpertiseAreas...)
	return &c
}

// RecentPhrases returns up to n of the most recently learned phrases.
func (p *Personality) RecentPhrases(n int) []string {
	if len(p.LearnedPhrases) <= n {
		return p.LearnedPhrases
	}
	return p.LearnedPhrases[len(p.LearnedPhrases)-n:]
}

// exchange is what one learning event folds into a personality.
type exchange struct {
	formality     float64
	phrases       []string
	terms         []string
	effectiveness float64
	responseWords int
	expertise     []string
}

func (p *Personality) apply(ex exchange, now time.Time) {
	p.LearnedPhrases = append(p.LearnedPhrases, ex.phrases...)
	if len(p.LearnedPhrases) > maxLearnedPhrases {
		p.LearnedPhrases = p.LearnedPhrases[len(p.LearnedPhrases)-maxLearnedPhrases:]
	}

	style := &p.CommunicationStyle
	style.Formality = append(style.Formality, ex.formality)
	if len(style.Formality) > formalityWindow {
		style.Formality = style.Formality[len(style.Formality)-formalityWindow:]
	}
	sum := 0.0
	for _, f := range style.Formality {
		sum += f
	}
	style.AvgFormality = sum / float64(len(style.Formality))

	if p.TechnicalPreferences.PreferredTerms == nil {
		p.TechnicalPreferences.PreferredTerms = map[string]int{}
	}
	for _, term := range ex.terms {
		p.TechnicalPreferences.PreferredTerms[term]++
	}
	p.TechnicalPreferences.PreferredTerms = topTerms(p.TechnicalPreferences.PreferredTerms, maxPreferredTerms)

	rp := &p.ResponsePatterns
	rp.Exchanges++
	n := float64(rp.Exchanges)
	rp.AvgEffectiveness += (ex.effectiveness - rp.AvgEffectiveness) / n
	rp.AvgResponseWords += (float64(ex.responseWords) - rp.AvgResponseWords) / n

	for _, area := range ex.expertise {
		if !containsString(p.ExpertiseAreas, area) {
			p.ExpertiseAreas = append(p.ExpertiseAreas, area)
		}
	}

	p.LastUpdated = now
}

// topTerms keeps the n most frequent terms, ties broken by term name.
func topTerms(counts map[string]int, n int) map[string]int {
	if len(counts) <= n {
		return counts
	}
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	kept := make(map[string]int, n)
	for _, term := range terms[:n] {
		kept[term] = counts[term]
	}
	return kept
}

// snapshot serializes the personality as persisted in personality_update
// entries. Only the most recent phrases are kept.
func (p *Personality) snapshot() (string, error) {
	s := p.Clone()
	s.LearnedPhrases = append([]string{}, p.RecentPhrases(snapshotPhrases)...)
	data, err := json.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "snapshot")
	}
	return string(data), nil
}

// parseSnapshot rebuilds a personality from a personality_update entry.
func parseSnapshot(agentID, content string, updated time.Time) (*Personality, error) {
	p := newPersonality(agentID)
	if err := json.Unmarshal([]byte(content), p); err != nil {
		return nil, errors.Wrap(err, "parseSnapshot")
	}
	if p.CommunicationStyle.Formality == nil {
		p.CommunicationStyle.Formality = []float64{}
	}
	if p.TechnicalPreferences.PreferredTerms == nil {
		p.TechnicalPreferences.PreferredTerms = map[string]int{}
	}
	if p.LearnedPhrases == nil {
		p.LearnedPhrases = []string{}
	}
	if p.ExpertiseAreas == nil {
		p.ExpertiseAreas = []string{}
	}
	p.AgentID = agentID
	p.LastUpdated = updated
	return p, nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// responsePatternRecord is the response_pattern payload.
type responsePatternRecord struct {
	UserStyle             *intelligence.StyleAnalysis `json:"user_style"`
	ResponseEffectiveness float64                     `json:"response_effectiveness"`
	ResponseLength        int                         `json:"response_length"`
	TechnicalTermsUsed    int                         `json:"technical_terms_used"`
}

// technicalLearningRecord is the technical_learning payload.
type technicalLearningRecord struct {
	UserTechTerms     []string `json:"user_tech_terms"`
	ResponseTechTerms []string `json:"response_tech_terms"`
	TechDepth         string   `json:"tech_depth"`
}
