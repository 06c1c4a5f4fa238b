package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-job-verdict/internal/config"
	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
	"github.com/fairyhunter13/ai-job-verdict/internal/usecase"
	"github.com/fairyhunter13/ai-job-verdict/pkg/textx"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Evaluate   usecase.EvaluateService
	Verdicts   usecase.VerdictService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() { validate = validator.New() })
	return validate
}

type evaluateRequest struct {
	CandidateProfile string `json:"candidate_profile" validate:"required,max=50000"`
	JobDescription   string `json:"job_description" validate:"required,max=50000"`
	MetadataLocation string `json:"metadata_location" validate:"max=200"`
}

// EvaluateHandler accepts an evaluation request, creates a job and enqueues
// it. Responds 202 with the job id; clients poll the verdict endpoint.
func (s *Server) EvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
			writeError(w, r, fmt.Errorf("%w: not acceptable", domain.ErrInvalidArgument), map[string]any{"accept": a})
			return
		}
		// Cap body size to prevent abuse
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}

		candidate := textx.SanitizeText(req.CandidateProfile)
		jobDesc := textx.SanitizeText(req.JobDescription)
		// Metadata location is a single-line field; fold any pasted
		// whitespace runs before it reaches the gazetteer.
		metaLoc := textx.CollapseSpaces(req.MetadataLocation)

		jobID, err := s.Evaluate.Enqueue(r.Context(), candidate, jobDesc, metaLoc, r.Header.Get("Idempotency-Key"))
		if err != nil {
			writeError(w, r, fmt.Errorf("enqueue: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": string(domain.JobQueued)})
	}
}

type verdictResponse struct {
	ID      string           `json:"id"`
	Status  domain.JobStatus `json:"status"`
	Error   string           `json:"error,omitempty"`
	Verdict *verdictBody     `json:"verdict,omitempty"`
}

type verdictBody struct {
	MatchLevel       domain.MatchLevel  `json:"match_level"`
	ContentType      domain.ContentType `json:"content_type"`
	ContentText      string             `json:"content_text"`
	DomainAssessment string             `json:"domain_assessment,omitempty"`
	RunsTotal        int                `json:"runs_total"`
	RunsExtracted    int                `json:"runs_extracted"`
	Location         locationBody       `json:"location"`
}

type locationBody struct {
	AuthoritativeLocation string                  `json:"authoritative_location"`
	ConflictDetected      bool                    `json:"conflict_detected"`
	Confidence            float64                 `json:"confidence"`
	RiskLevel             domain.RiskLevel        `json:"risk_level"`
	Method                domain.ValidationMethod `json:"method"`
	Reasoning             string                  `json:"reasoning"`
}

// VerdictHandler returns job status and the verdict when processing finished.
func (s *Server) VerdictHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		view, err := s.Verdicts.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		resp := verdictResponse{ID: view.ID, Status: view.Status, Error: view.Error}
		if v := view.Verdict; v != nil {
			resp.Verdict = &verdictBody{
				MatchLevel:       v.MatchLevel,
				ContentType:      v.ContentType,
				ContentText:      v.ContentText,
				DomainAssessment: v.DomainAssessment,
				RunsTotal:        v.RunsTotal,
				RunsExtracted:    v.RunsExtracted,
				Location: locationBody{
					AuthoritativeLocation: v.Location.AuthoritativeLocation,
					ConflictDetected:      v.Location.ConflictDetected,
					Confidence:            v.Location.Confidence,
					RiskLevel:             v.Location.RiskLevel,
					Method:                v.Location.Method,
					Reasoning:             v.Location.Reasoning,
				},
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ReadyzHandler probes the DB and Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
