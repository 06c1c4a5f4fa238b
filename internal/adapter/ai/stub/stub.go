// Package stub provides a deterministic offline AI client for local runs and
// tests. It recognises the two prompt families the decision core sends and
// answers each with a well-formed response, so the full pipeline can be
// exercised without an API key.
package stub

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// Client answers chat prompts deterministically. The same prompt always
// yields the same response; different nonces spread match responses across
// levels so consensus behaviour stays observable offline.
type Client struct{}

// New returns a stub client.
func New() *Client { return &Client{} }

// ChatText dispatches on the prompt family. Adjudication prompts get a
// no-conflict verdict; everything else gets a labeled match evaluation.
func (c *Client) ChatText(_ domain.Context, systemPrompt, userPrompt string, _ int) (string, error) {
	if strings.Contains(systemPrompt, "CONFLICT:") || strings.Contains(userPrompt, "Job posting excerpt") {
		return adjudicationResponse(), nil
	}
	return matchResponse(userPrompt), nil
}

var _ domain.AIClient = (*Client)(nil)

func adjudicationResponse() string {
	return strings.Join([]string{
		"CONFLICT: no",
		"AUTHORITATIVE_LOCATION: none",
		"REASONING: The excerpt does not name a work location that contradicts the metadata.",
	}, "\n")
}

func matchResponse(userPrompt string) string {
	level := "Good"
	assessment := "The candidate's background covers the core requirements of the role."
	switch fnvSum(userPrompt) % 5 {
	case 0:
		level = "Moderate"
		assessment = "The candidate covers most requirements but has limited exposure to parts of the stack."
	case 1:
		level = "Low"
		assessment = "There is a significant gap in the domain knowledge the role requires."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH LEVEL: %s\n\n", level)
	fmt.Fprintf(&b, "DOMAIN KNOWLEDGE ASSESSMENT:\n%s\n\n", assessment)
	if level == "Good" {
		b.WriteString("APPLICATION NARRATIVE:\n")
		b.WriteString("I am excited to apply for this position. My experience aligns closely with the ")
		b.WriteString("responsibilities described, and I have delivered comparable systems in production.\n")
	} else {
		b.WriteString("NO-GO RATIONALE:\n")
		b.WriteString("The requirements of this role do not align closely enough with the candidate's ")
		b.WriteString("demonstrated experience to justify an application at this time.\n")
	}
	return b.String()
}

func fnvSum(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
