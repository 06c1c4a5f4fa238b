package usecase

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// IdempotencyReserver records idempotency keys with a TTL. Implemented by the
// Redis cache adapter; nil disables the fast path and the unique index on
// jobs.idempotency_key remains the source of truth.
type IdempotencyReserver interface {
	ReserveIdempotencyKey(ctx domain.Context, key, jobID string, ttl time.Duration) (string, bool, error)
}

// EvaluateService orchestrates job creation and queueing for evaluation.
type EvaluateService struct {
	Jobs    domain.JobRepository
	Queue   domain.Queue
	Idem    IdempotencyReserver
	IdemTTL time.Duration
}

// NewEvaluateService constructs an EvaluateService with its dependencies.
func NewEvaluateService(j domain.JobRepository, q domain.Queue, idem IdempotencyReserver, idemTTL time.Duration) EvaluateService {
	return EvaluateService{Jobs: j, Queue: q, Idem: idem, IdemTTL: idemTTL}
}

// Enqueue validates inputs, creates a job, and enqueues the evaluation task.
// A repeated Idempotency-Key returns the original job id without enqueueing
// a second task.
func (s EvaluateService) Enqueue(ctx domain.Context, candidateProfile, jobDescription, metadataLocation, idemKey string) (string, error) {
	if candidateProfile == "" || jobDescription == "" {
		return "", fmt.Errorf("%w: candidate profile and job description required", domain.ErrInvalidArgument)
	}
	if idemKey != "" {
		if j, err := s.Jobs.FindByIdempotencyKey(ctx, idemKey); err == nil && j.ID != "" {
			return j.ID, nil
		}
	}

	j := domain.Job{Status: domain.JobQueued, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if idemKey != "" {
		j.IdemKey = &idemKey
	}
	jobID, err := s.Jobs.Create(ctx, j)
	if err != nil {
		if idemKey != "" {
			// Lost the unique-index race: another request claimed the key.
			if existing, ferr := s.Jobs.FindByIdempotencyKey(ctx, idemKey); ferr == nil && existing.ID != "" {
				return existing.ID, nil
			}
		}
		return "", err
	}
	if idemKey != "" && s.Idem != nil {
		// Best effort; the DB index already guarantees uniqueness.
		if winner, claimed, rerr := s.Idem.ReserveIdempotencyKey(ctx, idemKey, jobID, s.IdemTTL); rerr == nil && !claimed && winner != jobID {
			return winner, nil
		}
	}

	payload := domain.EvaluateTaskPayload{
		JobID:            jobID,
		CandidateProfile: candidateProfile,
		JobDescription:   jobDescription,
		MetadataLocation: metadataLocation,
	}
	if _, err := s.Queue.EnqueueEvaluate(ctx, payload); err != nil {
		_ = s.Jobs.UpdateStatus(ctx, jobID, domain.JobFailed, ptr("enqueue failed"))
		return "", err
	}
	return jobID, nil
}

func ptr(s string) *string { return &s }
