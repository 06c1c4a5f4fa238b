package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// VerdictRepo persists completed verdicts keyed by job id.
type VerdictRepo struct{ Pool PgxPool }

// NewVerdictRepo constructs a VerdictRepo with the given pool.
func NewVerdictRepo(p PgxPool) *VerdictRepo { return &VerdictRepo{Pool: p} }

// Upsert inserts or replaces the verdict for a job. Reprocessing a queue
// message after a partial failure lands on the same row.
func (r *VerdictRepo) Upsert(ctx domain.Context, v domain.Verdict) error {
	tracer := otel.Tracer("repo.verdicts")
	ctx, span := tracer.Start(ctx, "verdicts.Upsert")
	defer span.End()
	q := `INSERT INTO verdicts (job_id, match_level, content_type, content_text, domain_assessment, runs_total, runs_extracted, eval_error,
		loc_authoritative, loc_conflict, loc_confidence, loc_risk, loc_method, loc_reasoning, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (job_id)
	DO UPDATE SET match_level=EXCLUDED.match_level, content_type=EXCLUDED.content_type, content_text=EXCLUDED.content_text,
		domain_assessment=EXCLUDED.domain_assessment, runs_total=EXCLUDED.runs_total, runs_extracted=EXCLUDED.runs_extracted,
		eval_error=EXCLUDED.eval_error, loc_authoritative=EXCLUDED.loc_authoritative, loc_conflict=EXCLUDED.loc_conflict,
		loc_confidence=EXCLUDED.loc_confidence, loc_risk=EXCLUDED.loc_risk, loc_method=EXCLUDED.loc_method,
		loc_reasoning=EXCLUDED.loc_reasoning`
	_, err := r.Pool.Exec(ctx, q,
		v.JobID, v.MatchLevel, v.ContentType, v.ContentText, v.DomainAssessment, v.RunsTotal, v.RunsExtracted, v.EvalError,
		v.Location.AuthoritativeLocation, v.Location.ConflictDetected, v.Location.Confidence,
		v.Location.RiskLevel, v.Location.Method, v.Location.Reasoning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=verdict.upsert: %w", err)
	}
	return nil
}

// GetByJobID loads a verdict by its job id.
func (r *VerdictRepo) GetByJobID(ctx domain.Context, jobID string) (domain.Verdict, error) {
	tracer := otel.Tracer("repo.verdicts")
	ctx, span := tracer.Start(ctx, "verdicts.GetByJobID")
	defer span.End()
	q := `SELECT job_id, match_level, content_type, content_text, domain_assessment, runs_total, runs_extracted, eval_error,
		loc_authoritative, loc_conflict, loc_confidence, loc_risk, loc_method, loc_reasoning, created_at
	FROM verdicts WHERE job_id=$1`
	row := r.Pool.QueryRow(ctx, q, jobID)
	var v domain.Verdict
	if err := row.Scan(&v.JobID, &v.MatchLevel, &v.ContentType, &v.ContentText, &v.DomainAssessment,
		&v.RunsTotal, &v.RunsExtracted, &v.EvalError,
		&v.Location.AuthoritativeLocation, &v.Location.ConflictDetected, &v.Location.Confidence,
		&v.Location.RiskLevel, &v.Location.Method, &v.Location.Reasoning, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Verdict{}, fmt.Errorf("op=verdict.get: %w", domain.ErrNotFound)
		}
		return domain.Verdict{}, fmt.Errorf("op=verdict.get: %w", err)
	}
	return v, nil
}

var _ domain.VerdictRepository = (*VerdictRepo)(nil)
