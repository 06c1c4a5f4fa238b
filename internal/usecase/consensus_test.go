package usecase

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-verdict/internal/config"
	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// scriptedAI returns canned responses in call order and is safe for the
// evaluator's concurrent runs. When the script is exhausted the last entry
// repeats.
type scriptedAI struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedAI) ChatText(_ domain.Context, _, _ string, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if len(s.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedAI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() config.Config {
	return config.Config{
		ChatModel:               "test-model",
		EvalRuns:                5,
		EvalRetries:             3,
		EvalConcurrency:         2,
		MinContentChars:         15,
		AICallTimeout:           time.Second,
		AIMaxTokens:             800,
		GapSeverityThreshold:    1,
		GapDensityThresholdPct:  15,
		GazetteerConfidenceGate: 0.8,
		ExcerptTokenBudget:      900,
	}
}

func matchResponseText(level, assessment, contentHeader, content string) string {
	return fmt.Sprintf("MATCH LEVEL: %s\n\nDOMAIN KNOWLEDGE ASSESSMENT:\n%s\n\n%s:\n%s", level, assessment, contentHeader, content)
}

func goodResponse(assessment string) string {
	return matchResponseText("Good", assessment, "APPLICATION NARRATIVE", "I am excited to apply for this position and confident in my fit.")
}

func TestConsensus_AllGood(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{responses: []string{goodResponse("The candidate is an excellent fit for the advertised role.")}}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchGood, res.FinalLevel)
	assert.Equal(t, domain.ContentApplicationNarrative, res.ContentType)
	assert.Len(t, res.Runs, 5)
	assert.Equal(t, 5, ai.callCount())
}

func TestConsensus_SingleLowWins(t *testing.T) {
	t.Parallel()
	clean := "An excellent fit for the advertised role."
	ai := &scriptedAI{responses: []string{
		goodResponse(clean),
		matchResponseText("Low", clean, "NO-GO RATIONALE", "The role requirements do not align with the candidate."),
		goodResponse(clean),
		goodResponse(clean),
		goodResponse(clean),
	}}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchLow, res.FinalLevel)
	assert.Equal(t, domain.ContentNoGoRationale, res.ContentType)
}

func TestConsensus_LowestWinsAcrossMix(t *testing.T) {
	t.Parallel()
	clean := "An excellent fit for the advertised role."
	ai := &scriptedAI{responses: []string{
		goodResponse(clean),
		matchResponseText("Moderate", clean, "NO-GO RATIONALE", "Applying now is not advisable given the partial overlap."),
		goodResponse(clean),
		goodResponse(clean),
		goodResponse(clean),
	}}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchModerate, res.FinalLevel)
	assert.Equal(t, domain.ContentNoGoRationale, res.ContentType)
}

func TestConsensus_DomainGapDowngradesGoodToLow(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{responses: []string{
		goodResponse("The candidate lacks experience with the core platform, a significant gap for this role."),
	}}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchLow, res.FinalLevel)
	assert.Equal(t, domain.ContentNoGoRationale, res.ContentType)
	assert.Contains(t, res.ContentText, "critical gap")
	assert.Contains(t, res.ContentText, "lacks experience")
}

func TestConsensus_DomainRequirementsDowngradeGoodToModerate(t *testing.T) {
	t.Parallel()
	// Mentions experience without any critical-gap phrase and below the
	// density threshold.
	assessment := "Broad professional experience that maps onto what this position asks for across most of the listed responsibilities and tools."
	ai := &scriptedAI{responses: []string{goodResponse(assessment)}}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchModerate, res.FinalLevel)
	assert.Equal(t, domain.ContentNoGoRationale, res.ContentType)
	assert.Contains(t, res.ContentText, "caution")
}

func TestConsensus_NeverEscalates(t *testing.T) {
	t.Parallel()
	// Downgrade policy applies only to Good; a Moderate with a clean
	// assessment stays Moderate.
	clean := "An excellent fit for the advertised role."
	ai := &scriptedAI{responses: []string{
		matchResponseText("Moderate", clean, "NO-GO RATIONALE", "Partial overlap only; applying is not advisable."),
	}}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchModerate, res.FinalLevel)
}

func TestConsensus_AllRunsFail(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.EvalRuns = 2
	cfg.EvalRetries = 2
	ai := &scriptedAI{responses: []string{"I cannot assist with evaluating people."}}
	ev := NewConsensusEvaluator(cfg, ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.ErrorIs(t, err, domain.ErrExtractionFailure)
	assert.ErrorIs(t, res.Err, domain.ErrExtractionFailure)
	assert.Len(t, res.Runs, 2)
	// Each run made its initial attempt plus two retries.
	assert.Equal(t, 6, ai.callCount())
}

func TestConsensus_AttemptBudgetPerRun(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.EvalRuns = 1
	cfg.EvalRetries = 3
	ai := &scriptedAI{responses: []string{"I cannot assist with evaluating people."}}
	ev := NewConsensusEvaluator(cfg, ai, domain.Availability{LLM: true})

	_, err := ev.Evaluate(t.Context(), "profile", "job")
	require.ErrorIs(t, err, domain.ErrExtractionFailure)
	// One initial attempt plus three retries.
	assert.Equal(t, 4, ai.callCount())
}

func TestConsensus_RetryRecoversRun(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.EvalRuns = 1
	ai := &scriptedAI{
		errs:      []error{fmt.Errorf("%w: connection refused", domain.ErrTransport)},
		responses: []string{"", goodResponse("An excellent fit for the advertised role.")},
	}
	ev := NewConsensusEvaluator(cfg, ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchGood, res.FinalLevel)
	require.Len(t, res.Runs, 1)
	assert.Equal(t, 1, res.Runs[0].RetryIndex)
}

func TestConsensus_MinContentFallback(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{responses: []string{
		matchResponseText("Good", "An excellent fit for the advertised role.", "APPLICATION NARRATIVE", "ok"),
	}}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, fallbackNarrative, res.ContentText)
	assert.GreaterOrEqual(t, len(res.ContentText), 15)
}

func TestConsensus_MismatchedContentReplaced(t *testing.T) {
	t.Parallel()
	// A Low verdict carrying only a narrative: the narrative must not leak
	// into the rationale slot.
	text := "MATCH LEVEL: Low\n\nDOMAIN KNOWLEDGE ASSESSMENT:\nAn excellent fit for the advertised role.\n\nAPPLICATION NARRATIVE:\nI am excited to apply for this position."
	ai := &scriptedAI{responses: []string{text}}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchLow, res.FinalLevel)
	assert.Equal(t, fallbackRationale, res.ContentText)
	assert.NotContains(t, res.ContentText, "excited to apply")
}

func TestConsensus_LLMUnavailable(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{}
	ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: false})

	res, err := ev.Evaluate(t.Context(), "profile", "job")
	require.ErrorIs(t, err, domain.ErrExtractionFailure)
	assert.ErrorIs(t, res.Err, domain.ErrExtractionFailure)
	assert.Zero(t, ai.callCount())
}

func TestConsensus_NarrativeInvariant(t *testing.T) {
	t.Parallel()
	// Across a spread of scripted outcomes the narrative content type must
	// appear exactly when the final level is Good.
	scripts := [][]string{
		{goodResponse("An excellent fit for the advertised role.")},
		{matchResponseText("Low", "x", "NO-GO RATIONALE", "The role requirements do not align at all.")},
		{matchResponseText("Moderate", "x", "NO-GO RATIONALE", "Partial overlap only; not advisable right now.")},
		{goodResponse("The candidate lacks experience with the stack, a gap in the core requirement.")},
	}
	for i, script := range scripts {
		ai := &scriptedAI{responses: script}
		ev := NewConsensusEvaluator(testConfig(), ai, domain.Availability{LLM: true})
		res, err := ev.Evaluate(t.Context(), "profile", "job")
		require.NoError(t, err, "script %d", i)
		if res.FinalLevel == domain.MatchGood {
			assert.Equal(t, domain.ContentApplicationNarrative, res.ContentType, "script %d", i)
		} else {
			assert.Equal(t, domain.ContentNoGoRationale, res.ContentType, "script %d", i)
		}
	}
}

func TestCombineLevels(t *testing.T) {
	t.Parallel()
	mk := func(levels ...domain.MatchLevel) []domain.EvaluationRun {
		runs := make([]domain.EvaluationRun, len(levels))
		for i, l := range levels {
			runs[i] = domain.EvaluationRun{Level: l, LevelFound: l != ""}
		}
		return runs
	}
	assert.Equal(t, domain.MatchGood, combineLevels(mk(domain.MatchGood, domain.MatchGood)))
	assert.Equal(t, domain.MatchModerate, combineLevels(mk(domain.MatchGood, domain.MatchModerate)))
	assert.Equal(t, domain.MatchLow, combineLevels(mk(domain.MatchGood, domain.MatchLow, domain.MatchGood)))
	// Failed runs are ignored, not counted as Low.
	assert.Equal(t, domain.MatchGood, combineLevels(mk(domain.MatchGood, "")))
}

func TestEnsureMinContent(t *testing.T) {
	t.Parallel()
	ev := NewConsensusEvaluator(testConfig(), nil, domain.Availability{LLM: true})
	long := strings.Repeat("word ", 10)
	assert.Equal(t, long, ev.ensureMinContent(domain.MatchGood, long))
	assert.Equal(t, fallbackNarrative, ev.ensureMinContent(domain.MatchGood, " short "))
	assert.Equal(t, fallbackRationale, ev.ensureMinContent(domain.MatchLow, ""))
}
