package usecase

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

func TestAnalyzeDomainGap_CleanAssessment(t *testing.T) {
	t.Parallel()
	rep := AnalyzeDomainGap("The candidate is an excellent fit for the advertised position.")
	assert.Zero(t, rep.Severity)
	assert.False(t, rep.HasDomainRequirements)
	assert.Zero(t, rep.RequirementDensityPct)
}

func TestAnalyzeDomainGap_CriticalPhrases(t *testing.T) {
	t.Parallel()
	rep := AnalyzeDomainGap("The candidate lacks experience with Kubernetes and has a significant gap in cloud operations.")
	assert.GreaterOrEqual(t, rep.Severity, 2)
}

func TestAnalyzeDomainGap_SeverityCountsOccurrences(t *testing.T) {
	t.Parallel()
	one := AnalyzeDomainGap("no experience with Go")
	two := AnalyzeDomainGap("no experience with Go and no experience with Rust")
	assert.Greater(t, two.Severity, one.Severity)
}

func TestAnalyzeDomainGap_RequirementDensity(t *testing.T) {
	t.Parallel()
	// 3 requirement mentions in 6 words: 50% density.
	rep := AnalyzeDomainGap("experience skill knowledge and other words")
	assert.InDelta(t, 50.0, rep.RequirementDensityPct, 0.01)
	assert.True(t, rep.HasDomainRequirements)
}

func TestAnalyzeDomainGap_DensityKeywordsSetFlag(t *testing.T) {
	t.Parallel()
	for _, kw := range []string{"experience", "skill", "knowledge"} {
		rep := AnalyzeDomainGap("the role needs deep " + kw + " of distributed systems")
		assert.True(t, rep.HasDomainRequirements, kw)
	}
}

func TestAnalyzeDomainGap_EmptyText(t *testing.T) {
	t.Parallel()
	rep := AnalyzeDomainGap("")
	assert.Zero(t, rep.Severity)
	assert.Zero(t, rep.RequirementDensityPct)
	assert.False(t, rep.HasDomainRequirements)
}

func TestAnalyzeDomainGap_CaseInsensitive(t *testing.T) {
	t.Parallel()
	rep := AnalyzeDomainGap(strings.ToUpper("the candidate lacks experience here"))
	assert.GreaterOrEqual(t, rep.Severity, 1)
}

func TestAnalyzeDomainGap_SeverityMonotonicUnderAppend(t *testing.T) {
	t.Parallel()
	// Appending further gap phrases can only raise severity.
	text := "a generally solid profile"
	prev := AnalyzeDomainGap(text).Severity
	for _, phrase := range []string{
		"but lacks experience with the platform",
		"and has no background in payments",
		"overall a significant gap remains",
	} {
		text += ". " + phrase
		rep := AnalyzeDomainGap(text)
		assert.GreaterOrEqual(t, rep.Severity, prev, text)
		prev = rep.Severity
	}
}

func TestDomainGap_DowngradeMonotonicity(t *testing.T) {
	t.Parallel()
	// Stronger gap signals in the assessment never yield a less conservative
	// final level for a Good verdict.
	ev := NewConsensusEvaluator(testConfig(), nil, domain.Availability{LLM: true})
	assessments := []string{
		"A clear and complete overlap with the advertised role.",
		"Solid background in most areas; broad skill coverage overall.",
		"Solid skill coverage, though the candidate lacks experience with the core platform.",
		"Severe shortfall: lacks experience, no background in the required stack, a critical gap.",
	}
	wantRanks := []int{
		domain.MatchGood.Rank(),
		domain.MatchModerate.Rank(),
		domain.MatchLow.Rank(),
		domain.MatchLow.Rank(),
	}
	prev := domain.MatchGood.Rank()
	for i, a := range assessments {
		level, _, _ := ev.applyDomainGapPolicy(slog.Default(), domain.MatchGood, a, "original content")
		assert.Equal(t, wantRanks[i], level.Rank(), a)
		assert.LessOrEqual(t, level.Rank(), prev, a)
		prev = level.Rank()
	}
}
