package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

func TestExtractMatchLevel_LabeledForms(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		want domain.MatchLevel
	}{
		{"plain", "MATCH LEVEL: Good", domain.MatchGood},
		{"lowercase", "match level: low", domain.MatchLow},
		{"dash separator", "Match Level - Moderate", domain.MatchModerate},
		{"markdown bold", "MATCH LEVEL: **Good**", domain.MatchGood},
		{"no space", "MATCHLEVEL: Low", domain.MatchLow},
		{"embedded", "Summary first.\n\nMATCH LEVEL: Moderate\nmore text", domain.MatchModerate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractMatchLevel(tc.text)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractMatchLevel_LabelWinsOverProse(t *testing.T) {
	t.Parallel()
	// "good cultural fit" appears before the label; the label must win.
	text := "The candidate is a good cultural fit overall.\nMATCH LEVEL: Low"
	got, ok := ExtractMatchLevel(text)
	require.True(t, ok)
	assert.Equal(t, domain.MatchLow, got)
}

func TestExtractMatchLevel_BareWordFallback(t *testing.T) {
	t.Parallel()
	got, ok := ExtractMatchLevel("Overall this is a moderate fit for the role.")
	require.True(t, ok)
	assert.Equal(t, domain.MatchModerate, got)
}

func TestExtractMatchLevel_Absent(t *testing.T) {
	t.Parallel()
	_, ok := ExtractMatchLevel("I cannot assist with this request.")
	assert.False(t, ok)
}

func TestExtractDomainAssessment(t *testing.T) {
	t.Parallel()
	text := "MATCH LEVEL: Good\n\nDOMAIN KNOWLEDGE ASSESSMENT:\nStrong backend background.\nCovers the stack well.\n\nAPPLICATION NARRATIVE:\nDear team, ..."
	got := ExtractDomainAssessment(text)
	assert.Equal(t, "Strong backend background.\nCovers the stack well.", got)
}

func TestExtractDomainAssessment_MarkdownHeader(t *testing.T) {
	t.Parallel()
	text := "### **Domain Knowledge Assessment:**\nSolid coverage.\n\n### **No-Go Rationale:**\nnope"
	assert.Equal(t, "Solid coverage.", ExtractDomainAssessment(text))
}

func TestExtractDomainAssessment_Absent(t *testing.T) {
	t.Parallel()
	assert.Empty(t, ExtractDomainAssessment("MATCH LEVEL: Low\nNothing else."))
}

func TestExtractContent_ExpectedSection(t *testing.T) {
	t.Parallel()
	text := "MATCH LEVEL: Good\n\nAPPLICATION NARRATIVE:\nI am excited to apply."
	content, found, mismatch := ExtractContent(text, domain.MatchGood)
	assert.True(t, found)
	assert.False(t, mismatch)
	assert.Equal(t, "I am excited to apply.", content)
}

func TestExtractContent_RationaleForLow(t *testing.T) {
	t.Parallel()
	text := "MATCH LEVEL: Low\n\nNO-GO RATIONALE:\nThe requirements do not align."
	content, found, mismatch := ExtractContent(text, domain.MatchLow)
	assert.True(t, found)
	assert.False(t, mismatch)
	assert.Equal(t, "The requirements do not align.", content)
}

func TestExtractContent_WrongKindSignalsMismatch(t *testing.T) {
	t.Parallel()
	// A narrative under a Low level is the wrong content kind.
	text := "MATCH LEVEL: Low\n\nAPPLICATION NARRATIVE:\nI am excited to apply."
	_, found, mismatch := ExtractContent(text, domain.MatchLow)
	assert.False(t, found)
	assert.True(t, mismatch)
}

func TestExtractContent_Absent(t *testing.T) {
	t.Parallel()
	content, found, mismatch := ExtractContent("MATCH LEVEL: Good", domain.MatchGood)
	assert.Empty(t, content)
	assert.False(t, found)
	assert.False(t, mismatch)
}

func TestExtractSection_StopsAtNextHeader(t *testing.T) {
	t.Parallel()
	text := "DOMAIN KNOWLEDGE ASSESSMENT: has gaps\nNO-GO RATIONALE: skip it\ntrailing"
	s, ok := extractSection(text, sectionDomainAssessment)
	require.True(t, ok)
	assert.Equal(t, "has gaps", s)
	s, ok = extractSection(text, sectionRationale)
	require.True(t, ok)
	assert.Equal(t, "skip it\ntrailing", s)
}
