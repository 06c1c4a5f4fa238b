package usecase

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
	"github.com/fairyhunter13/ai-job-verdict/internal/gazetteer"
)

type memCache struct {
	mu     sync.Mutex
	stored []domain.Verdict
	err    error
}

func (c *memCache) StoreVerdict(_ domain.Context, v domain.Verdict, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.stored = append(c.stored, v)
	return nil
}

func newProcessService(t *testing.T, ai domain.AIClient, cache VerdictCache) (*ProcessService, *memJobs, *memVerdicts) {
	t.Helper()
	gaz, err := gazetteer.New()
	require.NoError(t, err)
	cfg := testConfig()
	jobs := newMemJobs()
	verdicts := newMemVerdicts()
	svc := NewProcessService(jobs, verdicts,
		NewConsensusEvaluator(cfg, ai, domain.Availability{LLM: true}),
		NewLocationValidator(cfg, ai, gaz, domain.Availability{LLM: true}),
		cache, time.Hour)
	return svc, jobs, verdicts
}

func queuedPayload(t *testing.T, jobs *memJobs) domain.EvaluateTaskPayload {
	t.Helper()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobQueued})
	require.NoError(t, err)
	return domain.EvaluateTaskPayload{
		JobID:            id,
		CandidateProfile: "Platform engineer with eight years of building payment systems.",
		JobDescription:   "Join our Berlin office as a senior platform engineer.",
		MetadataLocation: "Berlin, Germany",
	}
}

func TestProcess_CompletedPath(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{responses: []string{goodResponse("An excellent fit for the advertised role.")}}
	cache := &memCache{}
	svc, jobs, verdicts := newProcessService(t, ai, cache)
	payload := queuedPayload(t, jobs)

	require.NoError(t, svc.Process(t.Context(), payload))

	assert.Equal(t, domain.JobCompleted, jobs.status(payload.JobID))
	v, err := verdicts.GetByJobID(t.Context(), payload.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchGood, v.MatchLevel)
	assert.Equal(t, domain.ContentApplicationNarrative, v.ContentType)
	assert.Equal(t, 5, v.RunsTotal)
	assert.Equal(t, 5, v.RunsExtracted)
	assert.Empty(t, v.EvalError)
	// Metadata and posting agree on Berlin; the gazetteer settles it alone.
	assert.Equal(t, domain.MethodGazetteer, v.Location.Method)
	assert.False(t, v.Location.ConflictDetected)

	require.Len(t, cache.stored, 1)
	assert.Equal(t, payload.JobID, cache.stored[0].JobID)
}

func TestProcess_ExtractionFailureMarksFailedButKeepsVerdict(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{responses: []string{"I cannot assist with evaluating people."}}
	cache := &memCache{}
	svc, jobs, verdicts := newProcessService(t, ai, cache)
	payload := queuedPayload(t, jobs)

	require.NoError(t, svc.Process(t.Context(), payload), "extraction failure is terminal, not retryable")

	assert.Equal(t, domain.JobFailed, jobs.status(payload.JobID))
	v, err := verdicts.GetByJobID(t.Context(), payload.JobID)
	require.NoError(t, err, "the verdict row records what was learned")
	assert.Contains(t, v.EvalError, "extraction failure")
	assert.Zero(t, v.RunsExtracted)
	// Location validation still ran.
	assert.Equal(t, domain.MethodGazetteer, v.Location.Method)
	assert.Empty(t, cache.stored, "failed jobs are not cached")
}

func TestProcess_CacheFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{responses: []string{goodResponse("An excellent fit for the advertised role.")}}
	cache := &memCache{err: errors.New("redis down")}
	svc, jobs, _ := newProcessService(t, ai, cache)
	payload := queuedPayload(t, jobs)

	require.NoError(t, svc.Process(t.Context(), payload))
	assert.Equal(t, domain.JobCompleted, jobs.status(payload.JobID))
}

func TestProcess_NilCache(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{responses: []string{goodResponse("An excellent fit for the advertised role.")}}
	svc, jobs, _ := newProcessService(t, ai, nil)
	payload := queuedPayload(t, jobs)

	require.NoError(t, svc.Process(t.Context(), payload))
	assert.Equal(t, domain.JobCompleted, jobs.status(payload.JobID))
}

func TestProcess_UnknownJob(t *testing.T) {
	t.Parallel()
	ai := &scriptedAI{responses: []string{goodResponse("An excellent fit for the advertised role.")}}
	svc, _, _ := newProcessService(t, ai, nil)

	err := svc.Process(t.Context(), domain.EvaluateTaskPayload{JobID: "ghost"})
	assert.Error(t, err)
}
