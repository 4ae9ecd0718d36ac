// Package metrics records Prometheus metrics for LLM requests and workflow
// progress, and queries a Prometheus server for per-workflow aggregates.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"recast/pkg/config"
)

// Recorder implements llm.Recorder and the workflow-level counters.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	iterationsTotal  *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	filesProcessed   *prometheus.CounterVec
}

// NewRecorder registers the metric families on the default registry.
func NewRecorder() *Recorder {
	return &Recorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, workflow, phase, and status",
			},
			[]string{"model", "workflow_id", "phase", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "workflow_id", "phase", "type"},
		),
		costsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"model", "workflow_id", "phase"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "workflow_id", "phase"},
		),
		iterationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_iterations_total",
				Help: "Total number of retry iterations consumed across workflows",
			},
			[]string{"workflow_id"},
		),
		escalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_escalations_total",
				Help: "Total number of files escalated after exhausting retries",
			},
			[]string{"workflow_id", "reason"},
		),
		filesProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_files_processed_total",
				Help: "Total number of files finished by terminal status",
			},
			[]string{"workflow_id", "status"},
		),
	}
}

// ObserveRequest records one completed LLM request. Token and cost counters
// only move on success; failed requests are not billed.
func (r *Recorder) ObserveRequest(
	model, workflowID, phase string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}
	r.requestsTotal.WithLabelValues(model, workflowID, phase, status, errorType).Inc()

	if success {
		r.tokensTotal.WithLabelValues(model, workflowID, phase, "prompt").Add(float64(promptTokens))
		r.tokensTotal.WithLabelValues(model, workflowID, phase, "completion").Add(float64(completionTokens))
		r.costsTotal.WithLabelValues(model, workflowID, phase).Add(requestCost(model, promptTokens, completionTokens))
	}
	r.requestDuration.WithLabelValues(model, workflowID, phase).Observe(duration.Seconds())
}

// IncIteration counts a consumed retry iteration.
func (r *Recorder) IncIteration(workflowID string) {
	r.iterationsTotal.WithLabelValues(workflowID).Inc()
}

// IncEscalation counts a terminal-for-file escalation.
func (r *Recorder) IncEscalation(workflowID, reason string) {
	r.escalationsTotal.WithLabelValues(workflowID, reason).Inc()
}

// IncFileProcessed counts a file reaching a terminal status.
func (r *Recorder) IncFileProcessed(workflowID, status string) {
	r.filesProcessed.WithLabelValues(workflowID, status).Inc()
}

// requestCost prices a request from the model registry; unknown models cost
// zero rather than guessing.
func requestCost(model string, promptTokens, completionTokens int) float64 {
	info, ok := config.GetModelInfo(model)
	if !ok {
		return 0
	}
	return float64(promptTokens)/1e6*info.InputCPM + float64(completionTokens)/1e6*info.OutputCPM
}
