package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-verdict/internal/config"
	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// Fallback content used when a run's narrative or rationale is missing,
// mismatched, or shorter than the configured minimum. Near-empty content is
// never surfaced to the caller.
const (
	fallbackNarrative = "The candidate profile aligns with the advertised requirements across all evaluation runs; a tailored application is recommended."
	fallbackRationale = "The evaluation did not produce a usable explanation, and the combined match evidence is too weak to recommend an application."
)

// ConsensusEvaluator runs N independent LLM evaluations per job and resolves
// them into one conservative MatchResult.
type ConsensusEvaluator struct {
	cfg   config.Config
	ai    domain.AIClient
	avail domain.Availability
}

// NewConsensusEvaluator constructs the evaluator with its collaborators.
func NewConsensusEvaluator(cfg config.Config, ai domain.AIClient, avail domain.Availability) *ConsensusEvaluator {
	return &ConsensusEvaluator{cfg: cfg, ai: ai, avail: avail}
}

// Evaluate executes the configured number of evaluation runs and combines
// them. The only error surfaced to the caller (besides context cancellation)
// is domain.ErrExtractionFailure when no run yielded a match level; every
// other failure degrades into a conservative, policy-adjusted result.
func (e *ConsensusEvaluator) Evaluate(ctx domain.Context, candidateProfile, jobDescription string) (domain.MatchResult, error) {
	lg := slog.Default().With(slog.String("component", "consensus"))
	if !e.avail.LLM {
		lg.Warn("llm endpoint unavailable; evaluation cannot run")
		res := domain.MatchResult{Err: domain.ErrExtractionFailure}
		return res, fmt.Errorf("evaluate: llm unavailable: %w", domain.ErrExtractionFailure)
	}

	runs := make([]domain.EvaluationRun, e.cfg.EvalRuns)
	g := new(errgroup.Group)
	g.SetLimit(max(1, e.cfg.EvalConcurrency))
	for i := range runs {
		g.Go(func() error {
			runs[i] = e.singleRun(ctx, candidateProfile, jobDescription)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		// Cancelled mid-flight: partial results must not look final.
		return domain.MatchResult{}, ctx.Err()
	}

	extracted := 0
	for _, r := range runs {
		if r.LevelFound {
			extracted++
		}
	}
	observability.ConsensusRunsTotal.WithLabelValues("extracted").Add(float64(extracted))
	observability.ConsensusRunsTotal.WithLabelValues("failed").Add(float64(len(runs) - extracted))
	if extracted == 0 {
		lg.Error("all evaluation runs failed extraction", slog.Int("runs", len(runs)))
		res := domain.MatchResult{Runs: runs, Err: domain.ErrExtractionFailure}
		return res, fmt.Errorf("evaluate: no run yielded a match level: %w", domain.ErrExtractionFailure)
	}

	final := combineLevels(runs)
	rep := representativeRun(runs, final)

	assessment := ExtractDomainAssessment(rep.RawText)
	content, _, mismatch := ExtractContent(rep.RawText, final)
	if mismatch {
		lg.Warn("representative run carried wrong content kind for its level",
			slog.String("level", string(final)))
		content = ""
	}

	final, contentType, content := e.applyDomainGapPolicy(lg, final, assessment, content)
	content = e.ensureMinContent(final, content)

	observability.MatchVerdictsTotal.WithLabelValues(string(final)).Inc()
	lg.Info("consensus resolved",
		slog.String("final_level", string(final)),
		slog.Int("runs", len(runs)),
		slog.Int("extracted", extracted))

	return domain.MatchResult{
		FinalLevel:       final,
		DomainAssessment: assessment,
		ContentType:      contentType,
		ContentText:      content,
		Runs:             runs,
	}, nil
}

// singleRun performs one logical evaluation run: an initial attempt plus up
// to EvalRetries retries, each with a fresh nonce, when extraction fails.
// Transport failures and per-call timeouts count the same as extraction
// failures: the run is recorded and the others continue.
func (e *ConsensusEvaluator) singleRun(ctx domain.Context, candidateProfile, jobDescription string) domain.EvaluationRun {
	run := domain.EvaluationRun{}
	for attempt := 0; attempt <= max(0, e.cfg.EvalRetries); attempt++ {
		run.RetryIndex = attempt
		if ctx.Err() != nil {
			return run
		}
		prompt, err := matchUserTemplate.Render(map[string]string{
			"candidate_profile": candidateProfile,
			"job_description":   jobDescription,
			"nonce":             uuid.NewString(),
		})
		if err != nil {
			slog.Error("match prompt render failed", slog.Any("error", err))
			return run
		}
		callCtx, cancel := contextWithTimeout(ctx, e.cfg.AICallTimeout)
		raw, err := e.ai.ChatText(callCtx, matchSystemPrompt, prompt, e.cfg.AIMaxTokens)
		cancel()
		if err != nil {
			slog.Warn("evaluation call failed",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			continue
		}
		run.RawText = raw
		if level, ok := ExtractMatchLevel(raw); ok {
			run.Level = level
			run.LevelFound = true
			return run
		}
		slog.Warn("no match level in response", slog.Int("attempt", attempt), slog.Int("response_length", len(raw)))
	}
	return run
}

// combineLevels applies lowest-match-wins. A single Low forces the final
// level to Low outright, so one strongly negative signal is never diluted by
// several lukewarm positives.
func combineLevels(runs []domain.EvaluationRun) domain.MatchLevel {
	final := domain.MatchLevel("")
	for _, r := range runs {
		if !r.LevelFound {
			continue
		}
		if r.Level == domain.MatchLow {
			return domain.MatchLow
		}
		if final == "" || r.Level.Rank() < final.Rank() {
			final = r.Level
		}
	}
	return final
}

// representativeRun picks the first run whose level equals the chosen final
// level; its text supplies the result's assessment and content.
func representativeRun(runs []domain.EvaluationRun, final domain.MatchLevel) domain.EvaluationRun {
	for _, r := range runs {
		if r.LevelFound && r.Level == final {
			return r
		}
	}
	return domain.EvaluationRun{}
}

// applyDomainGapPolicy corrects an optimistic Good verdict using the gap
// heuristic on the LLM's own assessment text. Downgrades always convert the
// content type; a narrative is never left dangling under a non-Good level.
func (e *ConsensusEvaluator) applyDomainGapPolicy(lg *slog.Logger, final domain.MatchLevel, assessment, content string) (domain.MatchLevel, domain.ContentType, string) {
	if final != domain.MatchGood {
		return final, domain.ContentNoGoRationale, content
	}
	rep := AnalyzeDomainGap(assessment)
	switch {
	case rep.Severity >= e.cfg.GapSeverityThreshold ||
		rep.RequirementDensityPct > e.cfg.GapDensityThresholdPct ||
		strings.Contains(strings.ToLower(assessment), "gap"):
		lg.Info("domain gap downgrade to low",
			slog.Int("severity", rep.Severity),
			slog.Float64("density_pct", rep.RequirementDensityPct))
		observability.ConsensusDowngradesTotal.WithLabelValues("critical_gap").Inc()
		return domain.MatchLow, domain.ContentNoGoRationale,
			fmt.Sprintf("Not recommended: the domain knowledge assessment identifies a critical gap. Assessment: %q", assessment)
	case rep.HasDomainRequirements:
		lg.Info("domain requirement downgrade to moderate",
			slog.Float64("density_pct", rep.RequirementDensityPct))
		observability.ConsensusDowngradesTotal.WithLabelValues("domain_requirements").Inc()
		return domain.MatchModerate, domain.ContentNoGoRationale,
			fmt.Sprintf("Proceed with caution: the assessment names domain requirements the candidate may not fully cover. Assessment: %q", assessment)
	}
	return domain.MatchGood, domain.ContentApplicationNarrative, content
}

// ensureMinContent swaps near-empty content for the generic fallback.
func (e *ConsensusEvaluator) ensureMinContent(final domain.MatchLevel, content string) string {
	if len(strings.TrimSpace(content)) >= e.cfg.MinContentChars {
		return content
	}
	if final == domain.MatchGood {
		return fallbackNarrative
	}
	return fallbackRationale
}

func contextWithTimeout(ctx domain.Context, d time.Duration) (domain.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
