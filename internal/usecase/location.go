package usecase

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-verdict/internal/config"
	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
	"github.com/fairyhunter13/ai-job-verdict/internal/gazetteer"
)

// Tolerant parsers for the Phase-2 adjudication template. Missing fields
// default to no-conflict rather than raising.
var (
	adjConflictRe = regexp.MustCompile(`(?im)^\s*\**\s*conflict\s*\**\s*[:\-]\s*\**\s*(yes|no)\b`)
	adjLocationRe = regexp.MustCompile(`(?im)^\s*\**\s*authoritative[_\s-]*location\s*\**\s*[:\-]\s*(.+)$`)
	adjReasonRe   = regexp.MustCompile(`(?is)reasoning\s*\**\s*[:\-]\s*(.+)$`)
)

// LocationValidator decides whether a job's declared metadata location
// conflicts with the location actually described in its body text. The
// gazetteer fast path settles the common cases; constrained LLM adjudication
// handles only the ambiguous remainder, and both paths pass the same safety
// overrides before a conflict is accepted.
type LocationValidator struct {
	cfg    config.Config
	ai     domain.AIClient
	gaz    *gazetteer.Gazetteer
	tokens *tokencount.Counter
	avail  domain.Availability
}

// NewLocationValidator constructs the validator with its collaborators.
func NewLocationValidator(cfg config.Config, ai domain.AIClient, gaz *gazetteer.Gazetteer, avail domain.Availability) *LocationValidator {
	return &LocationValidator{cfg: cfg, ai: ai, gaz: gaz, tokens: tokencount.NewCounter(), avail: avail}
}

// Validate runs the two-phase decision for one job. It never returns an
// error: an unresolved validation defaults to trusting the metadata, with
// the low confidence visible in the result for audit.
func (v *LocationValidator) Validate(ctx domain.Context, metadataLocation, jobBody string) domain.LocationAnalysis {
	lg := slog.Default().With(slog.String("component", "location"))

	analysis, decided := v.gazetteerPhase(metadataLocation, jobBody)
	if decided && analysis.Confidence >= v.cfg.GazetteerConfidenceGate {
		analysis.Method = domain.MethodGazetteer
	} else {
		analysis = v.adjudicationPhase(ctx, lg, metadataLocation, jobBody, analysis)
	}

	analysis = v.applyConflictOverrides(lg, metadataLocation, analysis)

	observability.LocationValidationsTotal.WithLabelValues(
		string(analysis.Method), fmt.Sprintf("%t", analysis.ConflictDetected)).Inc()
	observability.LocationConfidence.Observe(analysis.Confidence)
	lg.Info("location validated",
		slog.String("method", string(analysis.Method)),
		slog.Bool("conflict", analysis.ConflictDetected),
		slog.Float64("confidence", analysis.Confidence),
		slog.String("risk", string(analysis.RiskLevel)))
	return analysis
}

// gazetteerPhase is the deterministic fast path. decided is false when the
// input is too ambiguous for a verdict (unrecognized metadata, or body
// places outside the tables), in which case the returned analysis only
// carries the working confidence for the gate check.
func (v *LocationValidator) gazetteerPhase(metadataLocation, jobBody string) (domain.LocationAnalysis, bool) {
	out := domain.LocationAnalysis{
		AuthoritativeLocation: metadataLocation,
		RiskLevel:             domain.RiskNone,
	}

	meta, metaOK := v.gaz.Normalize(metadataLocation)
	if !metaOK {
		out.Confidence = 0.55
		out.Reasoning = "declared metadata location is not in the gazetteer"
		return out, false
	}

	mentions := v.gaz.ExtractMentions(jobBody)
	hints := v.gaz.UnknownPlaceHints(jobBody)

	// Same city named in the body: nothing contradicts the metadata.
	if meta.City != "" {
		for _, c := range mentions.Cities {
			if c == meta.City {
				out.Confidence = 0.95
				out.Reasoning = fmt.Sprintf("job body mentions the declared city %s", meta.City)
				return out, true
			}
		}
	}

	if len(mentions.Cities) == 0 {
		if len(hints) > 0 {
			out.Confidence = 0.6
			out.Reasoning = fmt.Sprintf("job body names places outside the gazetteer: %s", strings.Join(hints, ", "))
			return out, false
		}
		out.Confidence = 0.95
		out.Reasoning = "job body mentions no recognized city; nothing contradicts the metadata"
		return out, true
	}

	other, _ := v.gaz.Normalize(mentions.Cities[0])

	// Country-only metadata with a body city inside that country is not a
	// conflict; "Germany" vs a body that says "Berlin" trusts the body city.
	if meta.City == "" && other.Country == meta.Country {
		out.Confidence = 0.9
		out.Reasoning = fmt.Sprintf("job body names %s within the declared country %s", other.City, meta.Country)
		return out, true
	}

	authoritative := gazetteer.Canonical(other)
	out.AuthoritativeLocation = authoritative
	out.ConflictDetected = true
	out.Confidence = 0.85
	out.Reasoning = fmt.Sprintf("job body names %s while the metadata declares %s", authoritative, metadataLocation)
	out.RiskLevel = classifyRisk(meta, other)
	return out, true
}

// adjudicationPhase sends a constrained prompt for the ambiguous remainder.
// Any client failure converts to the error fallback; a hard failure never
// propagates out of the validator.
func (v *LocationValidator) adjudicationPhase(ctx domain.Context, lg *slog.Logger, metadataLocation, jobBody string, phase1 domain.LocationAnalysis) domain.LocationAnalysis {
	if !v.avail.LLM {
		return v.errorFallback(metadataLocation, "llm endpoint unavailable; trusting declared metadata")
	}

	note := phase1.Reasoning
	if note == "" {
		note = "no deterministic findings"
	}
	excerpt := v.tokens.Truncate(jobBody, v.cfg.ChatModel, v.cfg.ExcerptTokenBudget)
	prompt, err := adjudicationUserTemplate.Render(map[string]string{
		"metadata_location": metadataLocation,
		"gazetteer_note":    note,
		"excerpt":           excerpt,
		"nonce":             uuid.NewString(),
	})
	if err != nil {
		lg.Error("adjudication prompt render failed", slog.Any("error", err))
		return v.errorFallback(metadataLocation, "adjudication prompt could not be built")
	}

	callCtx, cancel := contextWithTimeout(ctx, v.cfg.AICallTimeout)
	raw, err := v.ai.ChatText(callCtx, adjudicationSystemPrompt, prompt, 400)
	cancel()
	if err != nil {
		lg.Warn("adjudication call failed", slog.Any("error", err))
		return v.errorFallback(metadataLocation, "location validation failed; trusting declared metadata")
	}

	out := domain.LocationAnalysis{
		AuthoritativeLocation: metadataLocation,
		Method:                domain.MethodLLM,
		RiskLevel:             domain.RiskNone,
	}
	conflictMatch := adjConflictRe.FindStringSubmatch(raw)
	if conflictMatch == nil {
		out.Confidence = 0.6
		out.Reasoning = "adjudicator response missing conflict field; defaulting to no conflict"
		return out
	}
	if reason := adjReasonRe.FindStringSubmatch(raw); reason != nil {
		out.Reasoning = strings.TrimSpace(reason[1])
	}
	if !strings.EqualFold(conflictMatch[1], "yes") {
		out.Confidence = 0.75
		if out.Reasoning == "" {
			out.Reasoning = "adjudicator found no conflict"
		}
		return out
	}
	loc := adjLocationRe.FindStringSubmatch(raw)
	if loc == nil || strings.TrimSpace(loc[1]) == "" {
		out.Confidence = 0.6
		out.Reasoning = "adjudicator claimed a conflict without naming a location; defaulting to no conflict"
		return out
	}
	out.ConflictDetected = true
	out.AuthoritativeLocation = strings.TrimSpace(strings.Trim(strings.TrimSpace(loc[1]), "*"))
	out.Confidence = 0.75
	meta, _ := v.gaz.Normalize(metadataLocation)
	auth, _ := v.gaz.Normalize(out.AuthoritativeLocation)
	out.RiskLevel = classifyRisk(meta, auth)
	return out
}

// applyConflictOverrides enforces that every accepted conflict is traceable
// to text evidence. Unconstrained adjudicator output has been observed to
// assert locations that appear nowhere in the source; such claims are
// cleared and the metadata trusted.
func (v *LocationValidator) applyConflictOverrides(lg *slog.Logger, metadataLocation string, a domain.LocationAnalysis) domain.LocationAnalysis {
	if !a.ConflictDetected {
		a.RiskLevel = domain.RiskNone
		return a
	}

	// Formatting or language variants of the same place are not a conflict.
	if v.gaz.SameCity(metadataLocation, a.AuthoritativeLocation) ||
		v.gaz.Similarity(metadataLocation, a.AuthoritativeLocation) >= 0.8 {
		lg.Info("conflict cleared: same location under normalization",
			slog.String("metadata", metadataLocation),
			slog.String("claimed", a.AuthoritativeLocation))
		a.ConflictDetected = false
		a.AuthoritativeLocation = metadataLocation
		if a.Confidence < 0.9 {
			a.Confidence = 0.9
		}
		a.RiskLevel = domain.RiskNone
		a.Reasoning = strings.TrimSpace(a.Reasoning + " (conflict cleared: declared and claimed locations normalize to the same place)")
		return a
	}

	// Grounding check: the claimed location, or its normalized city token,
	// must appear in the reasoning itself.
	if !claimGrounded(v.gaz, a.AuthoritativeLocation, a.Reasoning) {
		lg.Warn("conflict cleared: claim not grounded in reasoning",
			slog.String("claimed", a.AuthoritativeLocation))
		a.ConflictDetected = false
		a.AuthoritativeLocation = metadataLocation
		a.Confidence = 0.6
		a.RiskLevel = domain.RiskNone
		a.Reasoning = strings.TrimSpace(a.Reasoning + " (conflict cleared: claimed location is not supported by the cited evidence)")
		return a
	}

	return a
}

func claimGrounded(gaz *gazetteer.Gazetteer, claimed, reasoning string) bool {
	lowerReason := strings.ToLower(reasoning)
	if strings.Contains(lowerReason, strings.ToLower(strings.TrimSpace(claimed))) {
		return true
	}
	if loc, ok := gaz.Normalize(claimed); ok && loc.City != "" {
		return strings.Contains(lowerReason, strings.ToLower(loc.City))
	}
	return false
}

func (v *LocationValidator) errorFallback(metadataLocation, reason string) domain.LocationAnalysis {
	return domain.LocationAnalysis{
		AuthoritativeLocation: metadataLocation,
		ConflictDetected:      false,
		Confidence:            0,
		RiskLevel:             domain.RiskNone,
		Method:                domain.MethodErrorFallback,
		Reasoning:             reason,
	}
}

// classifyRisk maps a confirmed conflict to a risk grade by geographic
// distance: different country is critical, a different region of the same
// country is medium, anything closer is low. Unresolvable geography is high.
func classifyRisk(meta, authoritative gazetteer.Location) domain.RiskLevel {
	if meta.Country == "" || authoritative.Country == "" {
		return domain.RiskHigh
	}
	if meta.Country != authoritative.Country {
		return domain.RiskCritical
	}
	if meta.State != authoritative.State {
		return domain.RiskMedium
	}
	return domain.RiskLow
}
