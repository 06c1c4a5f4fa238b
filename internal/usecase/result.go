package usecase

import (
	"fmt"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// VerdictCacheReader reads back verdicts cached at completion time.
// Implemented by the Redis adapter; nil disables the fast path.
type VerdictCacheReader interface {
	GetVerdict(ctx domain.Context, jobID string) (domain.Verdict, error)
}

// VerdictService reads back job state and the persisted verdict for the API.
type VerdictService struct {
	Jobs     domain.JobRepository
	Verdicts domain.VerdictRepository
	Cache    VerdictCacheReader
}

// NewVerdictService constructs a VerdictService with its repositories and the
// optional verdict cache.
func NewVerdictService(j domain.JobRepository, v domain.VerdictRepository, cache VerdictCacheReader) VerdictService {
	return VerdictService{Jobs: j, Verdicts: v, Cache: cache}
}

// VerdictView is the adapter-facing DTO: job lifecycle state plus the
// verdict once one exists.
type VerdictView struct {
	ID      string
	Status  domain.JobStatus
	Error   string
	Verdict *domain.Verdict
}

// Get loads the job and, when processing finished, its verdict.
func (s VerdictService) Get(ctx domain.Context, id string) (VerdictView, error) {
	if id == "" {
		return VerdictView{}, fmt.Errorf("%w: id required", domain.ErrInvalidArgument)
	}
	j, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return VerdictView{}, err
	}
	view := VerdictView{ID: j.ID, Status: j.Status, Error: j.Error}
	if j.Status != domain.JobCompleted && j.Status != domain.JobFailed {
		return view, nil
	}
	// Completed verdicts are cached at processing time; any cache failure
	// falls through to the repository.
	if s.Cache != nil && j.Status == domain.JobCompleted {
		if v, cerr := s.Cache.GetVerdict(ctx, j.ID); cerr == nil {
			view.Verdict = &v
			return view, nil
		}
	}
	v, err := s.Verdicts.GetByJobID(ctx, j.ID)
	if err != nil {
		// A failed job may legitimately have no verdict row.
		if j.Status == domain.JobFailed {
			return view, nil
		}
		return VerdictView{}, err
	}
	view.Verdict = &v
	return view, nil
}
