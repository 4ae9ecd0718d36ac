// Package state defines the workflow aggregate and its entities. Every type
// here is plain structured data: the whole aggregate serializes to JSON at
// each state-machine boundary and restores bit-for-bit for suspend/resume.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FileStatus tracks a WorkItem through its lifecycle.
type FileStatus string

const (
	FilePending    FileStatus = "PENDING"
	FileInProgress FileStatus = "IN_PROGRESS"
	FileCompleted  FileStatus = "COMPLETED"
	FileFailed     FileStatus = "FAILED"
	FileSkipped    FileStatus = "SKIPPED"
)

// fileTransitions is the monotonic status order: no file re-enters PENDING.
var fileTransitions = map[FileStatus][]FileStatus{
	FilePending:    {FileInProgress, FileSkipped},
	FileInProgress: {FileCompleted, FileFailed, FileSkipped},
	FileCompleted:  {},
	FileFailed:     {},
	FileSkipped:    {},
}

// CanTransitionTo reports whether moving to next is a legal status change.
func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	for _, allowed := range fileTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is possible.
func (s FileStatus) IsTerminal() bool {
	return len(fileTransitions[s]) == 0
}

// ApprovalStatus is the human gate's verdict for the workflow.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// WorkItem is the per-file record. OriginalContent never changes once set;
// ModifiedContent and Diff are replaced on every generation attempt.
type WorkItem struct {
	FilePath        string     `json:"file_path"`
	OriginalContent string     `json:"original_content"`
	ModifiedContent string     `json:"modified_content,omitempty"`
	Diff            string     `json:"diff,omitempty"`
	Status          FileStatus `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// SetStatus applies a status change, enforcing monotonic order.
func (w *WorkItem) SetStatus(next FileStatus) bool {
	if !w.Status.CanTransitionTo(next) {
		return false
	}
	w.Status = next
	return true
}

// ValidationOutcome records one check tool's run against one candidate.
// Outcomes are append-only: written once, then only read as history.
type ValidationOutcome struct {
	ToolName     string    `json:"tool_name"`
	Passed       bool      `json:"passed"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Stdout       string    `json:"stdout,omitempty"`
	Stderr       string    `json:"stderr,omitempty"`
	ExitCode     int       `json:"exit_code"`
	DurationMS   int64     `json:"duration_ms"`
	FailedTests  []string  `json:"failed_tests,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// IsRecord reports whether the entry is a real outcome and not a
// zero-valued or foreign placeholder that crept into the history.
func (v ValidationOutcome) IsRecord() bool {
	return v.ToolName != ""
}

// ReflectionNote is structured guidance distilled from validation failures,
// fed back into the next generation attempt. One per failed iteration.
type ReflectionNote struct {
	Iteration          int       `json:"iteration"`
	ErrorSummary       string    `json:"error_summary"`
	SuggestedFix       string    `json:"suggested_fix"`
	RelevantErrorLines []string  `json:"relevant_error_lines,omitempty"` // at most 5
	CreatedAt          time.Time `json:"created_at"`
}

// MaxRelevantErrorLines caps the raw error lines carried by a note.
const MaxRelevantErrorLines = 5

// RefactoringTarget is a located code element discovered by analysis.
// Read-only once produced.
type RefactoringTarget struct {
	FilePath    string `json:"file_path"`
	Kind        string `json:"kind"` // function, class, module
	Name        string `json:"name"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Description string `json:"description,omitempty"`
}

// HashContent returns the hex SHA-256 of candidate content, used for
// oscillation detection across generation attempts.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
