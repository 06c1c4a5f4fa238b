package usecase

import (
	"strings"
)

// DomainGapReport is the output of the domain-gap heuristic applied to an
// extracted domain-knowledge-assessment passage.
type DomainGapReport struct {
	Severity              int
	HasDomainRequirements bool
	RequirementDensityPct float64
}

// Phrases indicating a stated skill or experience deficit. Occurrence counts
// feed Severity. The list is deliberately biased toward flagging: an
// over-downgraded Good costs less than recommending an application the
// candidate cannot fulfill.
var criticalGapPhrases = []string{
	"lacks experience",
	"lack of experience",
	"lacks the",
	"no experience",
	"no prior experience",
	"missing experience",
	"missing the required",
	"does not have",
	"has not worked",
	"has never",
	"insufficient",
	"not familiar",
	"unfamiliar with",
	"no background",
	"years of experience required",
	"falls short",
	"critical gap",
	"significant gap",
	"gap in",
}

// Phrases counted for requirement density.
var requirementPhrases = []string{
	"experience",
	"skill",
	"knowledge",
	"expertise",
	"proficiency",
	"required",
	"qualification",
	"familiarity",
}

// Density keywords whose mere presence marks a moderate signal.
var densityKeywords = []string{"experience", "skill", "knowledge"}

// AnalyzeDomainGap scans an assessment passage for severity signals. Pure
// heuristic, not a semantic classifier: Severity counts critical-gap phrase
// occurrences and RequirementDensityPct is requirement mentions per hundred
// words.
func AnalyzeDomainGap(text string) DomainGapReport {
	lower := strings.ToLower(text)
	var rep DomainGapReport
	for _, p := range criticalGapPhrases {
		rep.Severity += strings.Count(lower, p)
	}
	mentions := 0
	for _, p := range requirementPhrases {
		mentions += strings.Count(lower, p)
	}
	if words := len(strings.Fields(lower)); words > 0 {
		rep.RequirementDensityPct = 100 * float64(mentions) / float64(words)
	}
	for _, k := range densityKeywords {
		if strings.Contains(lower, k) {
			rep.HasDomainRequirements = true
			break
		}
	}
	return rep
}
