package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
	obsctx "github.com/fairyhunter13/ai-job-verdict/internal/observability"
)

// VerdictCache stores completed verdicts for cheap reads. Implemented by the
// Redis adapter; nil disables caching.
type VerdictCache interface {
	StoreVerdict(ctx domain.Context, v domain.Verdict, ttl time.Duration) error
}

// ProcessService executes one queued evaluation task end to end: consensus
// match evaluation and location validation run concurrently, and their union
// is persisted as the job's verdict.
type ProcessService struct {
	Jobs      domain.JobRepository
	Verdicts  domain.VerdictRepository
	Evaluator *ConsensusEvaluator
	Locator   *LocationValidator
	Cache     VerdictCache
	CacheTTL  time.Duration
}

// NewProcessService constructs a ProcessService with its collaborators.
func NewProcessService(jobs domain.JobRepository, verdicts domain.VerdictRepository, ev *ConsensusEvaluator, loc *LocationValidator, cache VerdictCache, cacheTTL time.Duration) *ProcessService {
	return &ProcessService{Jobs: jobs, Verdicts: verdicts, Evaluator: ev, Locator: loc, Cache: cache, CacheTTL: cacheTTL}
}

// Process handles one task. Location validation always yields an analysis;
// only a total extraction failure marks the job failed, and even then the
// verdict row records what was learned.
func (s *ProcessService) Process(ctx domain.Context, payload domain.EvaluateTaskPayload) error {
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("job_id", payload.JobID))

	if err := s.Jobs.UpdateStatus(ctx, payload.JobID, domain.JobProcessing, nil); err != nil {
		return fmt.Errorf("process: mark processing: %w", err)
	}

	var (
		match    domain.MatchResult
		matchErr error
		location domain.LocationAnalysis
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		match, matchErr = s.Evaluator.Evaluate(ctx, payload.CandidateProfile, payload.JobDescription)
		return nil
	})
	g.Go(func() error {
		location = s.Locator.Validate(ctx, payload.MetadataLocation, payload.JobDescription)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		// Cancelled mid-flight; leave the record for redelivery.
		return fmt.Errorf("process: %w", err)
	}

	v := domain.Verdict{
		JobID:            payload.JobID,
		MatchLevel:       match.FinalLevel,
		ContentType:      match.ContentType,
		ContentText:      match.ContentText,
		DomainAssessment: match.DomainAssessment,
		RunsTotal:        len(match.Runs),
		RunsExtracted:    countExtracted(match.Runs),
		Location:         location,
	}
	if matchErr != nil {
		v.EvalError = matchErr.Error()
	}
	if err := s.Verdicts.Upsert(ctx, v); err != nil {
		return fmt.Errorf("process: upsert verdict: %w", err)
	}

	if matchErr != nil {
		lg.Error("match evaluation failed", slog.Any("error", matchErr))
		observability.JobsFailedTotal.WithLabelValues("evaluate").Inc()
		msg := matchErr.Error()
		if err := s.Jobs.UpdateStatus(ctx, payload.JobID, domain.JobFailed, &msg); err != nil {
			return fmt.Errorf("process: mark failed: %w", err)
		}
		return nil
	}

	if s.Cache != nil {
		if err := s.Cache.StoreVerdict(ctx, v, s.CacheTTL); err != nil {
			lg.Warn("verdict cache store failed", slog.Any("error", err))
		}
	}
	if err := s.Jobs.UpdateStatus(ctx, payload.JobID, domain.JobCompleted, nil); err != nil {
		return fmt.Errorf("process: mark completed: %w", err)
	}
	observability.JobsCompletedTotal.WithLabelValues("evaluate").Inc()
	lg.Info("verdict stored",
		slog.String("match_level", string(v.MatchLevel)),
		slog.Bool("location_conflict", v.Location.ConflictDetected))
	return nil
}

func countExtracted(runs []domain.EvaluationRun) int {
	n := 0
	for _, r := range runs {
		if r.LevelFound {
			n++
		}
	}
	return n
}
