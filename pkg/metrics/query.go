package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// WorkflowMetrics is the aggregated token and cost view for one workflow.
type WorkflowMetrics struct {
	WorkflowID       string  `json:"workflow_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService aggregates recorded metrics from a Prometheus server.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{client: client, queryAPI: v1.NewAPI(client)}, nil
}

// GetWorkflowMetrics returns total tokens and cost for one workflow across
// every model and phase.
func (q *QueryService) GetWorkflowMetrics(ctx context.Context, workflowID string) (*WorkflowMetrics, error) {
	m := &WorkflowMetrics{WorkflowID: workflowID}

	prompt, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_tokens_total{workflow_id=%q, type="prompt"})`, workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	m.PromptTokens = int64(prompt)

	completion, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_tokens_total{workflow_id=%q, type="completion"})`, workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	m.CompletionTokens = int64(completion)
	m.TotalTokens = m.PromptTokens + m.CompletionTokens

	cost, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_costs_total{workflow_id=%q})`, workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	m.TotalCost = cost

	return m, nil
}

// GetWorkflowMetricsByModel breaks the aggregates down per model.
func (q *QueryService) GetWorkflowMetricsByModel(ctx context.Context, workflowID string) (map[string]*WorkflowMetrics, error) {
	result := make(map[string]*WorkflowMetrics)

	modelsResult, _, err := q.queryAPI.Query(ctx,
		fmt.Sprintf(`group by (model) (llm_tokens_total{workflow_id=%q})`, workflowID), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	vector, ok := modelsResult.(model.Vector)
	if !ok {
		return result, nil
	}

	for _, sample := range vector {
		name, ok := sample.Metric["model"]
		if !ok {
			continue
		}
		modelName := string(name)
		m := &WorkflowMetrics{WorkflowID: workflowID}

		prompt, err := q.scalar(ctx, fmt.Sprintf(
			`sum(llm_tokens_total{workflow_id=%q, model=%q, type="prompt"})`, workflowID, modelName))
		if err != nil {
			return nil, err
		}
		completion, err := q.scalar(ctx, fmt.Sprintf(
			`sum(llm_tokens_total{workflow_id=%q, model=%q, type="completion"})`, workflowID, modelName))
		if err != nil {
			return nil, err
		}
		cost, err := q.scalar(ctx, fmt.Sprintf(
			`sum(llm_costs_total{workflow_id=%q, model=%q})`, workflowID, modelName))
		if err != nil {
			return nil, err
		}

		m.PromptTokens = int64(prompt)
		m.CompletionTokens = int64(completion)
		m.TotalTokens = m.PromptTokens + m.CompletionTokens
		m.TotalCost = cost
		result[modelName] = m
	}
	return result, nil
}

// scalar evaluates an instant query expected to return a single sample.
// Missing series evaluate to zero.
func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
