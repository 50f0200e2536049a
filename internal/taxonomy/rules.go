package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules is the static configuration the extractor and classifier are
// compiled from. It is loaded once at engine start; the zero value is
// not usable, call DefaultRules or LoadRules.
type Rules struct {
	// Marker is the literal sequence that precedes a category path in
	// a post body, e.g. "/category/".
	Marker string `yaml:"marker"`
	// InformantMarker is the infix that tags a confidential-informant
	// case slug, e.g. the "ci" in "22-ci-07".
	InformantMarker string `yaml:"informant_marker"`
	// MemoKeywords classify a slug as a memo when any of them appears
	// as a substring.
	MemoKeywords []string `yaml:"memo_keywords"`
	// MaxSlugLen bounds accepted slug candidates after normalization.
	MaxSlugLen int `yaml:"max_slug_len"`
	// MinCaseNumberLen is the minimum total length for the case-number
	// shape (two digits plus dash-delimited numeric groups).
	MinCaseNumberLen int `yaml:"min_case_number_len"`
}

func DefaultRules() Rules {
	return Rules{
		Marker:           "/category/",
		InformantMarker:  "ci",
		MemoKeywords:     []string{"memo"},
		MaxSlugLen:       30,
		MinCaseNumberLen: 8,
	}
}

// LoadRules reads a YAML rules file and fills any omitted field from the
// defaults. A missing path returns the defaults unchanged.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	var loaded Rules
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return rules, fmt.Errorf("parse rules file: %w", err)
	}
	if strings.TrimSpace(loaded.Marker) != "" {
		rules.Marker = strings.ToLower(strings.TrimSpace(loaded.Marker))
	}
	if strings.TrimSpace(loaded.InformantMarker) != "" {
		rules.InformantMarker = strings.ToLower(strings.TrimSpace(loaded.InformantMarker))
	}
	if len(loaded.MemoKeywords) > 0 {
		keywords := make([]string, 0, len(loaded.MemoKeywords))
		for _, kw := range loaded.MemoKeywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) > 0 {
			rules.MemoKeywords = keywords
		}
	}
	if loaded.MaxSlugLen > 0 {
		rules.MaxSlugLen = loaded.MaxSlugLen
	}
	if loaded.MinCaseNumberLen > 0 {
		rules.MinCaseNumberLen = loaded.MinCaseNumberLen
	}
	return rules, nil
}
