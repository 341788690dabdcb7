package intelligence

import (
	"os"
	"regexp"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TermCategory groups technical terms of one field.
type TermCategory struct {
	Name  string   `yaml:"name" json:"name"`
	Terms []string `yaml:"terms" json:"terms"`
}

// TraitIndicators lists the words that signal one personality trait.
type TraitIndicators struct {
	Trait      string   `yaml:"trait" json:"trait"`
	Indicators []string `yaml:"indicators" json:"indicators"`
}

// ToneIndicators lists the words that signal each communication tone.
type ToneIndicators struct {
	Friendly     []string `yaml:"friendly" json:"friendly"`
	Professional []string `yaml:"professional" json:"professional"`
	Technical    []string `yaml:"technical" json:"technical"`
}

// Vocabulary holds every word list the analyzer matches against.
//
// All terms are matched against lowercased text. Formal and casual entries
// are regular expressions; the others are plain substrings.
type Vocabulary struct {
	FormalPatterns        []string          `yaml:"formal_patterns" json:"formal_patterns"`
	CasualPatterns        []string          `yaml:"casual_patterns" json:"casual_patterns"`
	TechnicalCategories   []TermCategory    `yaml:"technical_categories" json:"technical_categories"`
	Tones                 ToneIndicators    `yaml:"tones" json:"tones"`
	PersonalityIndicators []TraitIndicators `yaml:"personality_indicators" json:"personality_indicators"`
}

// DefaultVocabulary returns the built-in word lists.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		FormalPatterns: []string{
			`\b(please|thank you|appreciate|regards|sincerely)\b`,
			`\b(would|could|should|might)\b`,
			`\b(however|therefore|furthermore|moreover)\b`,
			`\b(utilize|implement|facilitate|endeavor)\b`,
		},
		CasualPatterns: []string{
			`\b(hey|hi|hello|yo)\b`,
			`\b(yeah|yep|nope|nah)\b`,
			`\b(cool|awesome|great|nice)\b`,
			`\b(btw|fyi|imo|tbh)\b`,
			`\b(lol|haha|lmao)\b`,
		},
		TechnicalCategories: []TermCategory{
			{Name: "programming", Terms: []string{"code", "function", "variable", "class", "method", "algorithm"}},
			{Name: "web_dev", Terms: []string{"html", "css", "javascript", "react", "angular", "vue"}},
			{Name: "backend", Terms: []string{"api", "server", "database", "sql", "nosql", "rest"}},
			{Name: "cloud", Terms: []string{"aws", "azure", "gcp", "docker", "kubernetes", "deployment"}},
			{Name: "mobile", Terms: []string{"ios", "android", "react native", "flutter", "swift", "kotlin"}},
			{Name: "ai_ml", Terms: []string{"machine learning", "neural network", "model", "training", "inference"}},
		},
		Tones: ToneIndicators{
			Friendly:     []string{"great", "awesome", "cool", "nice", "good", "excellent", "wonderful"},
			Professional: []string{"please", "thank you", "regards", "sincerely", "appreciate"},
			Technical:    []string{"api", "database", "server", "code", "function", "algorithm"},
		},
		PersonalityIndicators: []TraitIndicators{
			{Trait: "detail_oriented", Indicators: []string{"specifically", "precisely", "exactly", "detailed", "thorough"}},
			{Trait: "collaborative", Indicators: []string{"team", "together", "collaborate", "discuss", "input"}},
			{Trait: "solution_focused", Indicators: []string{"solution", "fix", "resolve", "solve", "address"}},
			{Trait: "creative", Indicators: []string{"creative", "innovative", "unique", "different", "approach"}},
			{Trait: "analytical", Indicators: []string{"analyze", "data", "metrics", "measure", "evaluate"}},
		},
	}
}

// LoadVocabulary reads a YAML vocabulary file. Sections missing from the file
// keep their defaults.
//
// Example file:
//
//	technical_categories:
//	  - name: data
//	    terms: [spark, kafka, airflow]
//	tones:
//	  friendly: [great, thanks]
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "LoadVocabulary")
	}

	vocab := DefaultVocabulary()
	if err := yaml.Unmarshal(data, vocab); err != nil {
		return nil, errors.Wrap(err, "LoadVocabulary")
	}
	if _, err := compilePatterns(vocab.FormalPatterns); err != nil {
		return nil, err
	}
	if _, err := compilePatterns(vocab.CasualPatterns); err != nil {
		return nil, err
	}
	return vocab, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern %q", p)
		}
		out = append(out, re)
	}
	return out, nil
}
