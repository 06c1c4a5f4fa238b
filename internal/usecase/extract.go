// Package usecase contains the decision core: the match consensus evaluator,
// the hybrid location validator, and the pure text utilities they share.
package usecase

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// Recognized response section headers. Extraction captures from a header up
// to the next recognized header or end of text.
const (
	sectionMatchLevel       = "MATCH LEVEL"
	sectionDomainAssessment = "DOMAIN KNOWLEDGE ASSESSMENT"
	sectionNarrative        = "APPLICATION NARRATIVE"
	sectionRationale        = "NO-GO RATIONALE"
)

var sectionHeaders = []string{
	sectionMatchLevel,
	sectionDomainAssessment,
	sectionNarrative,
	sectionRationale,
}

var (
	// Labeled form wins over bare words so "a good cultural fit" in prose
	// cannot outrank an explicit "MATCH LEVEL: Low" line.
	levelLabelRe = regexp.MustCompile(`(?i)match\s*level\s*[:\-]?\s*\**\s*(low|moderate|good)\b`)
	levelWordRe  = regexp.MustCompile(`(?i)\b(low|moderate|good)\b`)

	headerRes = buildHeaderRes()
)

func buildHeaderRes() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(sectionHeaders))
	for _, h := range sectionHeaders {
		// Tolerate markdown decoration and either colon or dash after the
		// header, e.g. "### **No-Go Rationale:**".
		flexible := strings.NewReplacer(" ", `[\s-]+`, "-", `[\s-]+`).Replace(regexp.QuoteMeta(h))
		pattern := `(?i)[#*]*\s*` + flexible + `\s*\**\s*[:\-]`
		out[h] = regexp.MustCompile(pattern)
	}
	return out
}

// ExtractMatchLevel scans one LLM response for the first match-level marker
// and returns the categorical level. Total: returns false instead of an
// error when no marker is present; the caller owns retry policy.
func ExtractMatchLevel(text string) (domain.MatchLevel, bool) {
	if m := levelLabelRe.FindStringSubmatch(text); m != nil {
		return domain.MatchLevel(strings.ToLower(m[1])), true
	}
	if m := levelWordRe.FindStringSubmatch(text); m != nil {
		return domain.MatchLevel(strings.ToLower(m[1])), true
	}
	return "", false
}

// extractSection captures the body of a labeled section up to the next
// recognized header or end of text. Returns false when the header is absent.
func extractSection(text, header string) (string, bool) {
	re, ok := headerRes[header]
	if !ok {
		return "", false
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	rest := text[loc[1]:]
	end := len(rest)
	for _, other := range sectionHeaders {
		if other == header {
			continue
		}
		if l := headerRes[other].FindStringIndex(rest); l != nil && l[0] < end {
			end = l[0]
		}
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(rest[:end]), "*#")), true
}

// ExtractDomainAssessment returns the domain-knowledge-assessment passage, or
// the empty string when the response carries no such section. Absence is not
// an error.
func ExtractDomainAssessment(text string) string {
	s, _ := extractSection(text, sectionDomainAssessment)
	return s
}

// ExtractContent returns the narrative or rationale text appropriate for the
// already-extracted match level. found reports whether the expected section
// was present; mismatch reports that only the *wrong* kind of content exists
// for the level (a narrative under Low/Moderate, or a rationale under Good),
// which the evaluator treats as a signal rather than accepting silently.
func ExtractContent(text string, level domain.MatchLevel) (content string, found, mismatch bool) {
	expected, opposite := sectionRationale, sectionNarrative
	if level == domain.MatchGood {
		expected, opposite = sectionNarrative, sectionRationale
	}
	if s, ok := extractSection(text, expected); ok && s != "" {
		return s, true, false
	}
	if s, ok := extractSection(text, opposite); ok && s != "" {
		return s, false, true
	}
	return "", false, false
}
