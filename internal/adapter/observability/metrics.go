package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of verdict jobs enqueued",
		},
		[]string{"type"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of verdict jobs completed",
		},
		[]string{"type"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of verdict jobs failed",
		},
		[]string{"type"},
	)

	// Consensus evaluator instrumentation.
	ConsensusRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_runs_total",
			Help: "Evaluation runs by extraction outcome",
		},
		[]string{"outcome"},
	)
	ConsensusDowngradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_downgrades_total",
			Help: "Domain-gap downgrades by reason",
		},
		[]string{"reason"},
	)
	MatchVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_verdicts_total",
			Help: "Final match levels produced by the consensus evaluator",
		},
		[]string{"level"},
	)

	// Location validator instrumentation.
	LocationValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_validations_total",
			Help: "Location validations by method and conflict outcome",
		},
		[]string{"method", "conflict"},
	)
	LocationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "location_validation_confidence",
			Help:    "Distribution of location validation confidence [0,1]",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

var registerOnce sync.Once

// InitMetrics registers all metric vectors once per process.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			JobsEnqueuedTotal,
			JobsCompletedTotal,
			JobsFailedTotal,
			ConsensusRunsTotal,
			ConsensusDowngradesTotal,
			MatchVerdictsTotal,
			LocationValidationsTotal,
			LocationConfidence,
		)
	})
}

// HTTPMetricsMiddleware records request counts and latency per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
