package usecase

import (
	"fmt"
	"regexp"
	"strings"
)

// PromptTemplate is a minimal named-slot template. Required slots are checked
// at construction against the template text, and Render refuses empty
// required values, so a malformed prompt cannot silently degrade extraction
// quality.
type PromptTemplate struct {
	name     string
	text     string
	required []string
}

var slotRe = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// MustTemplate builds a PromptTemplate and panics when a required slot does
// not appear in the template text. Intended for package-level template vars.
func MustTemplate(name, text string, required ...string) PromptTemplate {
	for _, slot := range required {
		if !strings.Contains(text, "{{"+slot+"}}") {
			panic(fmt.Sprintf("prompt template %s: required slot %s missing from text", name, slot))
		}
	}
	return PromptTemplate{name: name, text: text, required: required}
}

// Render substitutes the slots and fails on missing or empty required values
// and on any slot left unfilled.
func (t PromptTemplate) Render(slots map[string]string) (string, error) {
	for _, slot := range t.required {
		if strings.TrimSpace(slots[slot]) == "" {
			return "", fmt.Errorf("prompt template %s: required slot %s is empty", t.name, slot)
		}
	}
	out := t.text
	for k, v := range slots {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	if m := slotRe.FindStringSubmatch(out); m != nil {
		return "", fmt.Errorf("prompt template %s: slot %s left unfilled", t.name, m[1])
	}
	return out, nil
}

// matchSystemPrompt pins the evaluator persona and the exact response layout
// the extraction utilities parse.
const matchSystemPrompt = `You are a rigorous recruitment screener. Judge how well a candidate fits a job posting.
Respond in plain text using exactly these labeled sections, in this order:
MATCH LEVEL: one of Low, Moderate, Good
DOMAIN KNOWLEDGE ASSESSMENT: two to four sentences on the candidate's domain expertise versus the job's domain requirements, naming any gaps explicitly
APPLICATION NARRATIVE: (only when MATCH LEVEL is Good) a short paragraph the candidate could use to open an application
NO-GO RATIONALE: (only when MATCH LEVEL is Low or Moderate) a short paragraph explaining why applying is not advisable
Do not add other sections.`

// matchUserTemplate carries the candidate and job texts. The nonce slot is
// regenerated per attempt to defeat response caching at the inference layer.
var matchUserTemplate = MustTemplate("match_user", `Candidate Profile:
{{candidate_profile}}

Job Description:
{{job_description}}

[evaluation-id: {{nonce}}]`, "candidate_profile", "job_description", "nonce")

// adjudicationSystemPrompt constrains Phase-2 location adjudication to a
// strict template so the validator can parse it with tolerant regexes and
// ground every conflict claim in quoted evidence.
const adjudicationSystemPrompt = `You verify job posting locations. Compare the declared metadata location with the work location actually described in the posting excerpt.
Respond in plain text using exactly this template:
CONFLICT: YES or NO
AUTHORITATIVE_LOCATION: the true work location (repeat the metadata location when there is no conflict)
REASONING: one or two sentences quoting the exact phrase from the excerpt that names the work location
Only report a conflict when the excerpt explicitly names a different work location. Never infer a location that is not written in the excerpt.`

var adjudicationUserTemplate = MustTemplate("adjudication_user", `Declared metadata location: {{metadata_location}}

Deterministic pre-check: {{gazetteer_note}}

Job posting excerpt:
{{excerpt}}

[validation-id: {{nonce}}]`, "metadata_location", "gazetteer_note", "excerpt", "nonce")
