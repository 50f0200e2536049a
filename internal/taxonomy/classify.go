package taxonomy

import (
	"fmt"
	"regexp"
	"strings"
)

// Class is the semantic class of an extracted slug.
type Class string

const (
	ClassYear       Class = "year"
	ClassInformant  Class = "informant"
	ClassCaseNumber Class = "case_number"
	ClassMemo       Class = "memo"
	ClassPlain      Class = "plain"
)

// Classification is the result of classifying one slug. YearKey, when
// set, names the four-digit year root the slug belongs under.
type Classification struct {
	Slug        string
	Class       Class
	Specificity int
	YearKey     string
}

// IsRoot reports whether the classified slug becomes a root category.
func (c Classification) IsRoot() bool {
	return c.YearKey == "" || c.Class == ClassYear
}

// Classifier applies the ordered rule table. First match wins; the
// informant rule is checked before the case-number rule because the two
// shapes overlap. Classification is total: every slug gets exactly one
// class.
type Classifier struct {
	yearRe       *regexp.Regexp
	informantRe  *regexp.Regexp
	caseRe       *regexp.Regexp
	memoKeywords []string
	minCaseLen   int
}

func NewClassifier(rules Rules) *Classifier {
	informant := strings.ToLower(rules.InformantMarker)
	if informant == "" {
		informant = DefaultRules().InformantMarker
	}
	minCaseLen := rules.MinCaseNumberLen
	if minCaseLen <= 0 {
		minCaseLen = DefaultRules().MinCaseNumberLen
	}
	keywords := rules.MemoKeywords
	if len(keywords) == 0 {
		keywords = DefaultRules().MemoKeywords
	}
	return &Classifier{
		yearRe:       regexp.MustCompile(`^[0-9]{4}$`),
		informantRe:  regexp.MustCompile(fmt.Sprintf(`^([0-9]{2})-%s-[0-9]+$`, regexp.QuoteMeta(informant))),
		caseRe:       regexp.MustCompile(`^([0-9]{2})(-[0-9]+)+$`),
		memoKeywords: keywords,
		minCaseLen:   minCaseLen,
	}
}

// Classify assigns slug its class, specificity rank and optional year
// key. It never fails; unmatched slugs are Plain.
func (c *Classifier) Classify(slug string) Classification {
	if c.yearRe.MatchString(slug) {
		return Classification{Slug: slug, Class: ClassYear, Specificity: 1, YearKey: slug}
	}
	if m := c.informantRe.FindStringSubmatch(slug); m != nil {
		return Classification{Slug: slug, Class: ClassInformant, Specificity: 3, YearKey: "20" + m[1]}
	}
	if m := c.caseRe.FindStringSubmatch(slug); m != nil && len(slug) >= c.minCaseLen {
		return Classification{Slug: slug, Class: ClassCaseNumber, Specificity: 3, YearKey: "20" + m[1]}
	}
	for _, kw := range c.memoKeywords {
		if strings.Contains(slug, kw) {
			return Classification{Slug: slug, Class: ClassMemo, Specificity: 2}
		}
	}
	return Classification{Slug: slug, Class: ClassPlain, Specificity: 1}
}
