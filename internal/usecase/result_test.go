package usecase

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

type memVerdicts struct {
	mu       sync.Mutex
	verdicts map[string]domain.Verdict
}

func newMemVerdicts() *memVerdicts {
	return &memVerdicts{verdicts: map[string]domain.Verdict{}}
}

func (m *memVerdicts) Upsert(_ domain.Context, v domain.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[v.JobID] = v
	return nil
}

func (m *memVerdicts) GetByJobID(_ domain.Context, jobID string) (domain.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verdicts[jobID]
	if !ok {
		return domain.Verdict{}, domain.ErrNotFound
	}
	return v, nil
}

// memCacheReader serves cached verdicts and records lookups.
type memCacheReader struct {
	mu      sync.Mutex
	cached  map[string]domain.Verdict
	err     error
	lookups int
}

func (c *memCacheReader) GetVerdict(_ domain.Context, jobID string) (domain.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	if c.err != nil {
		return domain.Verdict{}, c.err
	}
	v, ok := c.cached[jobID]
	if !ok {
		return domain.Verdict{}, domain.ErrNotFound
	}
	return v, nil
}

func TestVerdictGet_EmptyID(t *testing.T) {
	t.Parallel()
	svc := NewVerdictService(newMemJobs(), newMemVerdicts(), nil)
	_, err := svc.Get(t.Context(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestVerdictGet_UnknownJob(t *testing.T) {
	t.Parallel()
	svc := NewVerdictService(newMemJobs(), newMemVerdicts(), nil)
	_, err := svc.Get(t.Context(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerdictGet_QueuedHasNoVerdict(t *testing.T) {
	t.Parallel()
	jobs := newMemJobs()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobQueued})
	require.NoError(t, err)

	svc := NewVerdictService(jobs, newMemVerdicts(), nil)
	view, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, view.Status)
	assert.Nil(t, view.Verdict)
}

func TestVerdictGet_CompletedReturnsVerdict(t *testing.T) {
	t.Parallel()
	jobs := newMemJobs()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobCompleted})
	require.NoError(t, err)
	verdicts := newMemVerdicts()
	require.NoError(t, verdicts.Upsert(t.Context(), domain.Verdict{
		JobID:      id,
		MatchLevel: domain.MatchGood,
	}))

	svc := NewVerdictService(jobs, verdicts, nil)
	view, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, view.Verdict)
	assert.Equal(t, domain.MatchGood, view.Verdict.MatchLevel)
}

func TestVerdictGet_ServedFromCache(t *testing.T) {
	t.Parallel()
	jobs := newMemJobs()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobCompleted})
	require.NoError(t, err)
	// The repo is empty on purpose: a hit proves the cache answered.
	cache := &memCacheReader{cached: map[string]domain.Verdict{
		id: {JobID: id, MatchLevel: domain.MatchModerate},
	}}

	svc := NewVerdictService(jobs, newMemVerdicts(), cache)
	view, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, view.Verdict)
	assert.Equal(t, domain.MatchModerate, view.Verdict.MatchLevel)
	assert.Equal(t, 1, cache.lookups)
}

func TestVerdictGet_CacheMissFallsThrough(t *testing.T) {
	t.Parallel()
	jobs := newMemJobs()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobCompleted})
	require.NoError(t, err)
	verdicts := newMemVerdicts()
	require.NoError(t, verdicts.Upsert(t.Context(), domain.Verdict{JobID: id, MatchLevel: domain.MatchGood}))

	cache := &memCacheReader{cached: map[string]domain.Verdict{}}
	svc := NewVerdictService(jobs, verdicts, cache)
	view, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, view.Verdict)
	assert.Equal(t, domain.MatchGood, view.Verdict.MatchLevel)
	assert.Equal(t, 1, cache.lookups)
}

func TestVerdictGet_CacheErrorFallsThrough(t *testing.T) {
	t.Parallel()
	jobs := newMemJobs()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobCompleted})
	require.NoError(t, err)
	verdicts := newMemVerdicts()
	require.NoError(t, verdicts.Upsert(t.Context(), domain.Verdict{JobID: id, MatchLevel: domain.MatchGood}))

	svc := NewVerdictService(jobs, verdicts, &memCacheReader{err: errors.New("redis down")})
	view, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, view.Verdict)
}

func TestVerdictGet_FailedJobSkipsCache(t *testing.T) {
	t.Parallel()
	// Failed jobs are never cached; the cache must not even be consulted.
	jobs := newMemJobs()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobFailed, Error: "extraction failure"})
	require.NoError(t, err)

	cache := &memCacheReader{cached: map[string]domain.Verdict{}}
	svc := NewVerdictService(jobs, newMemVerdicts(), cache)
	view, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Nil(t, view.Verdict)
	assert.Zero(t, cache.lookups)
}

func TestVerdictGet_FailedToleratesMissingVerdict(t *testing.T) {
	t.Parallel()
	jobs := newMemJobs()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobFailed, Error: "enqueue failed"})
	require.NoError(t, err)

	svc := NewVerdictService(jobs, newMemVerdicts(), nil)
	view, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, view.Status)
	assert.Equal(t, "enqueue failed", view.Error)
	assert.Nil(t, view.Verdict)
}

func TestVerdictGet_FailedWithVerdictRow(t *testing.T) {
	t.Parallel()
	// Extraction failures still record what was learned; the view carries it.
	jobs := newMemJobs()
	id, err := jobs.Create(t.Context(), domain.Job{Status: domain.JobFailed, Error: "extraction failure"})
	require.NoError(t, err)
	verdicts := newMemVerdicts()
	require.NoError(t, verdicts.Upsert(t.Context(), domain.Verdict{
		JobID:     id,
		EvalError: "extraction failure",
		Location:  domain.LocationAnalysis{Method: domain.MethodGazetteer},
	}))

	svc := NewVerdictService(jobs, verdicts, nil)
	view, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, view.Verdict)
	assert.Equal(t, domain.MethodGazetteer, view.Verdict.Location.Method)
}
