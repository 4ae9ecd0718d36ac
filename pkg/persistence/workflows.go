package persistence

import (
	"context"
	"fmt"
	"time"

	"recast/pkg/state"
)

// WorkflowRow is the queryable summary of one workflow.
type WorkflowRow struct {
	ID             string    `json:"id"`
	Goal           string    `json:"goal"`
	Status         string    `json:"status"`
	MaxIterations  int       `json:"max_iterations"`
	IterationCount int       `json:"iteration_count"`
	ApprovalStatus string    `json:"approval_status"`
	TerminalError  string    `json:"terminal_error,omitempty"`
	Cancelled      bool      `json:"cancelled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SaveWorkflow upserts the workflow summary and its per-file rows.
func (s *Store) SaveWorkflow(ctx context.Context, ws *state.WorkflowState) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows
			(id, goal, status, max_iterations, iteration_count, approval_status,
			 terminal_error, cancelled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			iteration_count = excluded.iteration_count,
			approval_status = excluded.approval_status,
			terminal_error = excluded.terminal_error,
			cancelled = excluded.cancelled,
			updated_at = excluded.updated_at`,
		ws.ID, ws.Goal, ws.Status.String(), ws.MaxIterations, ws.IterationCount,
		string(ws.ApprovalStatus), ws.TerminalError, ws.Cancelled, ws.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", ws.ID, err)
	}

	for path, item := range ws.Files {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO work_items (workflow_id, file_path, status, error_message, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(workflow_id, file_path) DO UPDATE SET
				status = excluded.status,
				error_message = excluded.error_message,
				updated_at = excluded.updated_at`,
			ws.ID, path, string(item.Status), item.ErrorMessage, now)
		if err != nil {
			return fmt.Errorf("failed to save work item %s/%s: %w", ws.ID, path, err)
		}
	}
	return nil
}

// GetWorkflow returns one workflow's summary row.
func (s *Store) GetWorkflow(ctx context.Context, id string) (WorkflowRow, error) {
	var row WorkflowRow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, goal, status, max_iterations, iteration_count, approval_status,
			terminal_error, cancelled, created_at, updated_at
		 FROM workflows WHERE id = ?`, id).
		Scan(&row.ID, &row.Goal, &row.Status, &row.MaxIterations, &row.IterationCount,
			&row.ApprovalStatus, &row.TerminalError, &row.Cancelled, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return WorkflowRow{}, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}
	return row, nil
}

// ListWorkflows returns every workflow summary, newest first.
func (s *Store) ListWorkflows(ctx context.Context) ([]WorkflowRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, goal, status, max_iterations, iteration_count, approval_status,
			terminal_error, cancelled, created_at, updated_at
		 FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var list []WorkflowRow
	for rows.Next() {
		var row WorkflowRow
		if err := rows.Scan(&row.ID, &row.Goal, &row.Status, &row.MaxIterations,
			&row.IterationCount, &row.ApprovalStatus, &row.TerminalError,
			&row.Cancelled, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

// WorkItemRow is the queryable per-file status within a workflow.
type WorkItemRow struct {
	WorkflowID   string    `json:"workflow_id"`
	FilePath     string    `json:"file_path"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListWorkItems returns a workflow's per-file rows in path order.
func (s *Store) ListWorkItems(ctx context.Context, workflowID string) ([]WorkItemRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, file_path, status, error_message, updated_at
		 FROM work_items WHERE workflow_id = ? ORDER BY file_path`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items for %s: %w", workflowID, err)
	}
	defer rows.Close()

	var list []WorkItemRow
	for rows.Next() {
		var row WorkItemRow
		if err := rows.Scan(&row.WorkflowID, &row.FilePath, &row.Status,
			&row.ErrorMessage, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan work item row: %w", err)
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

// DeleteWorkflow removes a workflow and, via cascade, its items and
// checkpoints.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	return nil
}
