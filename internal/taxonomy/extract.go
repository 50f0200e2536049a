package taxonomy

import (
	"strings"
	"unicode"
)

// Extractor scans raw post bodies for embedded category links. It is a
// pure function over the body text; no match is not an error.
type Extractor struct {
	marker     string
	maxSlugLen int
}

func NewExtractor(rules Rules) *Extractor {
	marker := strings.ToLower(rules.Marker)
	if marker == "" {
		marker = DefaultRules().Marker
	}
	maxLen := rules.MaxSlugLen
	if maxLen <= 0 {
		maxLen = DefaultRules().MaxSlugLen
	}
	return &Extractor{marker: marker, maxSlugLen: maxLen}
}

// Extract returns the normalized slugs embedded in body, in order of
// first occurrence, de-duplicated. A nested pattern
// marker/<parent>/<child>/ yields both slugs, parent first. Candidates
// that fail normalization are dropped, not errors.
func (e *Extractor) Extract(body string) []string {
	if body == "" {
		return nil
	}
	lower := strings.ToLower(body)
	var out []string
	seen := map[string]bool{}

	pos := 0
	for {
		rel := strings.Index(lower[pos:], e.marker)
		if rel < 0 {
			break
		}
		start := pos + rel + len(e.marker)
		segments, next := readPathSegments(lower, start)
		for _, raw := range segments {
			slug, ok := e.normalizeSlug(raw)
			if !ok {
				continue
			}
			if !seen[slug] {
				seen[slug] = true
				out = append(out, slug)
			}
		}
		pos = next
	}
	return out
}

// readPathSegments reads up to two /-separated path components starting
// at i. A segment ends at '/', a quote character, or whitespace; the
// whole path ends at the first non-slash terminator. Repeated slashes
// collapse. Returns the raw segments and the index scanning stopped at.
func readPathSegments(s string, i int) ([]string, int) {
	var segments []string
	for len(segments) < 2 && i < len(s) {
		// collapse repeated slashes
		for i < len(s) && s[i] == '/' {
			i++
		}
		start := i
		for i < len(s) && !isSegmentTerminator(rune(s[i])) {
			i++
		}
		if i > start {
			segments = append(segments, s[start:i])
		}
		if i >= len(s) || s[i] != '/' {
			break
		}
	}
	return segments, i
}

func isSegmentTerminator(r rune) bool {
	if r == '/' || r == '"' || r == '\'' {
		return true
	}
	if unicode.IsSpace(r) {
		return true
	}
	// markup boundaries that end an embedded link in practice
	return r == '<' || r == '>' || r == '?' || r == '#' || r == '&' || r == '\\'
}

// normalizeSlug lower-cases the candidate, strips surrounding quote and
// percent-encoding artifacts, and rejects anything outside the bounded
// [a-z0-9-] vocabulary.
func (e *Extractor) normalizeSlug(raw string) (string, bool) {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = strings.Trim(slug, `"'`)
	slug = trimPercentEncoding(slug)
	if len(slug) < 1 || len(slug) > e.maxSlugLen {
		return "", false
	}
	for _, r := range slug {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return "", false
		}
	}
	return slug, true
}

// trimPercentEncoding removes leading/trailing %XX escapes such as the
// %22 left behind by encoded quote delimiters.
func trimPercentEncoding(s string) string {
	for len(s) >= 3 && s[0] == '%' && isHexByte(s[1]) && isHexByte(s[2]) {
		s = s[3:]
	}
	for len(s) >= 3 && s[len(s)-3] == '%' && isHexByte(s[len(s)-2]) && isHexByte(s[len(s)-1]) {
		s = s[:len(s)-3]
	}
	return s
}

func isHexByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// DisplayName derives the display form of a slug: dashes become spaces
// and each word is capitalized. Pure-numeric slugs (years, case numbers)
// are returned unchanged.
func DisplayName(slug string) string {
	hasAlpha := false
	for _, r := range slug {
		if r >= 'a' && r <= 'z' {
			hasAlpha = true
			break
		}
	}
	if !hasAlpha {
		return slug
	}
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
