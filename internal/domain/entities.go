// Package domain holds the core entities, ports, and error taxonomy of the
// job-verdict system. It stays free of third-party dependencies so that
// adapters and usecases can depend on it without pulling in their stacks.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrTransport marks LLM endpoint failures (unreachable, malformed
	// HTTP-level response). Recovered locally as a failed run or validation
	// attempt; never propagated raw to callers.
	ErrTransport = errors.New("transport error")
	// ErrExtractionFailure is surfaced when every consensus run failed to
	// yield a categorical match level. There is no safe default for "what is
	// the match level", so this one condition reaches the caller.
	ErrExtractionFailure = errors.New("extraction failure")
	ErrInternal          = errors.New("internal error")
)

// MatchLevel is the categorical verdict describing candidate-to-job fit.
type MatchLevel string

// Match levels ordered Low < Moderate < Good.
const (
	MatchLow      MatchLevel = "low"
	MatchModerate MatchLevel = "moderate"
	MatchGood     MatchLevel = "good"
)

// Rank returns the conservative ordering of the level: Low < Moderate < Good.
func (m MatchLevel) Rank() int {
	switch m {
	case MatchLow:
		return 0
	case MatchModerate:
		return 1
	case MatchGood:
		return 2
	}
	return -1
}

// Valid reports whether the level is one of the three known values.
func (m MatchLevel) Valid() bool { return m.Rank() >= 0 }

// ContentType classifies the free-text portion of a MatchResult.
type ContentType string

// Content types. Invariant: ContentApplicationNarrative if and only if the
// final match level is MatchGood.
const (
	ContentApplicationNarrative ContentType = "application_narrative"
	ContentNoGoRationale        ContentType = "no_go_rationale"
)

// EvaluationRun records one LLM call's outcome inside the consensus
// evaluator. Immutable once recorded; only summary statistics and the chosen
// run's text survive into downstream reporting.
type EvaluationRun struct {
	RawText    string
	Level      MatchLevel
	LevelFound bool
	RetryIndex int
}

// MatchResult is the consensus evaluator's output.
type MatchResult struct {
	FinalLevel       MatchLevel
	DomainAssessment string
	ContentType      ContentType
	ContentText      string
	Runs             []EvaluationRun
	// Err is set only on total extraction failure (no run yielded a level).
	Err error
}

// RiskLevel grades a detected location conflict by geographic distance.
type RiskLevel string

// Risk levels. RiskNone is used when no conflict was detected.
const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ValidationMethod names the path that produced a LocationAnalysis.
type ValidationMethod string

// Validation methods.
const (
	MethodGazetteer     ValidationMethod = "gazetteer"
	MethodLLM           ValidationMethod = "llm_adjudicated"
	MethodErrorFallback ValidationMethod = "error_fallback"
)

// LocationAnalysis is the hybrid location validator's output.
//
// Invariants: ConflictDetected implies AuthoritativeLocation differs from the
// metadata location under normalized comparison, and every accepted conflict
// is traceable to evidence quoted in Reasoning. MethodErrorFallback implies
// ConflictDetected == false (the metadata is trusted by default).
type LocationAnalysis struct {
	AuthoritativeLocation string
	ConflictDetected      bool
	Confidence            float64
	RiskLevel             RiskLevel
	Method                ValidationMethod
	Reasoning             string
}

// Availability describes which external collaborators are reachable. It is
// injected into the orchestrators at construction so tests can simulate an
// unavailable endpoint deterministically.
type Availability struct {
	LLM bool
}

// JobStatus enumerates lifecycle states of a verdict job.
type JobStatus string

// Job lifecycle states.
const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job tracks one evaluation request from enqueue to verdict.
type Job struct {
	ID        string
	Status    JobStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
	IdemKey   *string
}

// Verdict is the persisted union of one MatchResult and one LocationAnalysis
// for a job. Not mutated after upsert; reporting collaborators read it.
type Verdict struct {
	JobID            string
	MatchLevel       MatchLevel
	ContentType      ContentType
	ContentText      string
	DomainAssessment string
	RunsTotal        int
	RunsExtracted    int
	EvalError        string
	Location         LocationAnalysis
	CreatedAt        time.Time
}

// EvaluateTaskPayload carries a queued evaluation job to the worker.
type EvaluateTaskPayload struct {
	JobID            string `json:"job_id"`
	CandidateProfile string `json:"candidate_profile"`
	JobDescription   string `json:"job_description"`
	MetadataLocation string `json:"metadata_location"`
}

// Repositories (ports)

// JobRepository persists job lifecycle state.
type JobRepository interface {
	Create(ctx Context, j Job) (string, error)
	UpdateStatus(ctx Context, id string, status JobStatus, errMsg *string) error
	Get(ctx Context, id string) (Job, error)
	FindByIdempotencyKey(ctx Context, key string) (Job, error)
}

// VerdictRepository persists completed verdicts keyed by job id.
type VerdictRepository interface {
	Upsert(ctx Context, v Verdict) error
	GetByJobID(ctx Context, jobID string) (Verdict, error)
}

// Queue (port)

// Queue hands evaluation tasks to the worker process.
type Queue interface {
	EnqueueEvaluate(ctx Context, payload EvaluateTaskPayload) (string, error)
}

// AIClient (port)

// AIClient is the LLM evaluation client seam. It accepts an opaque prompt and
// returns raw text; there is no semantic contract on the content.
type AIClient interface {
	ChatText(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Context aliases context.Context so ports read uniformly across the domain.
type Context = context.Context
