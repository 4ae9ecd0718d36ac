// Package persistence stores workflow summaries and state-machine
// checkpoints in SQLite. The store is an explicit value passed into its
// users; one connection, WAL mode, single writer.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"recast/pkg/logx"
)

// Store wraps the database connection and its operations.
type Store struct {
	db  *sql.DB
	log *logx.Logger
}

// Open opens (or creates) the database at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, log: logx.NewLogger("persistence")}
	s.log.Info("database initialized: %s", path)
	return s, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initializeSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			status TEXT NOT NULL,
			max_iterations INTEGER NOT NULL,
			iteration_count INTEGER NOT NULL DEFAULT 0,
			approval_status TEXT NOT NULL DEFAULT 'PENDING',
			terminal_error TEXT NOT NULL DEFAULT '',
			cancelled INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS work_items (
			workflow_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (workflow_id, file_path),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			workflow_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_name TEXT NOT NULL,
			snapshot BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (workflow_id, step),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow
			ON checkpoints(workflow_id, step DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Ping verifies the store is reachable; used as the unrecoverable-error
// probe before a workflow starts.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
