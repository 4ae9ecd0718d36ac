package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoCheckpoint is returned when a workflow has no checkpoint at the
// requested position.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// Checkpoint is one persisted state-machine boundary.
type Checkpoint struct {
	WorkflowID string    `json:"workflow_id"`
	Step       int       `json:"step"`
	NodeName   string    `json:"node_name"`
	Snapshot   []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveCheckpoint records a snapshot at a state-machine boundary. Steps are
// written once; rewriting an existing step is a rewind bug, so the insert
// conflicts instead of upserting.
func (s *Store) SaveCheckpoint(ctx context.Context, workflowID string, step int, node string, snapshot []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (workflow_id, step, node_name, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		workflowID, step, node, snapshot, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s/%d: %w", workflowID, step, err)
	}
	return nil
}

// LoadCheckpoint returns the snapshot stored at a specific step.
func (s *Store) LoadCheckpoint(ctx context.Context, workflowID string, step int) (Checkpoint, error) {
	return s.scanCheckpoint(s.db.QueryRowContext(ctx,
		`SELECT workflow_id, step, node_name, snapshot, created_at
		 FROM checkpoints WHERE workflow_id = ? AND step = ?`,
		workflowID, step))
}

// LoadLatest returns the most recent checkpoint for a workflow.
func (s *Store) LoadLatest(ctx context.Context, workflowID string) (Checkpoint, error) {
	return s.scanCheckpoint(s.db.QueryRowContext(ctx,
		`SELECT workflow_id, step, node_name, snapshot, created_at
		 FROM checkpoints WHERE workflow_id = ?
		 ORDER BY step DESC LIMIT 1`,
		workflowID))
}

func (s *Store) scanCheckpoint(row *sql.Row) (Checkpoint, error) {
	var cp Checkpoint
	err := row.Scan(&cp.WorkflowID, &cp.Step, &cp.NodeName, &cp.Snapshot, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints returns a workflow's checkpoints in step order, without
// snapshots.
func (s *Store) ListCheckpoints(ctx context.Context, workflowID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, step, node_name, created_at
		 FROM checkpoints WHERE workflow_id = ? ORDER BY step`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for %s: %w", workflowID, err)
	}
	defer rows.Close()

	var list []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.WorkflowID, &cp.Step, &cp.NodeName, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		list = append(list, cp)
	}
	return list, rows.Err()
}

// MaxStep returns the highest recorded step for a workflow, 0 when none.
func (s *Store) MaxStep(ctx context.Context, workflowID string) (int, error) {
	var step sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(step) FROM checkpoints WHERE workflow_id = ?`,
		workflowID).Scan(&step)
	if err != nil {
		return 0, fmt.Errorf("failed to read max step for %s: %w", workflowID, err)
	}
	return int(step.Int64), nil
}

// RewindToStep restores the snapshot at step and deletes everything after
// it. This is the administrative time-travel override; the loop itself never
// truncates history.
func (s *Store) RewindToStep(ctx context.Context, workflowID string, step int) (Checkpoint, error) {
	cp, err := s.LoadCheckpoint(ctx, workflowID, step)
	if err != nil {
		return Checkpoint{}, err
	}
	if err := s.DeleteAfterStep(ctx, workflowID, step); err != nil {
		return Checkpoint{}, err
	}
	s.log.Info("workflow %s rewound to step %d (%s)", workflowID, step, cp.NodeName)
	return cp, nil
}

// DeleteAfterStep removes every checkpoint past the given step.
func (s *Store) DeleteAfterStep(ctx context.Context, workflowID string, step int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE workflow_id = ? AND step > ?`,
		workflowID, step)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoints after %s/%d: %w", workflowID, step, err)
	}
	return nil
}
