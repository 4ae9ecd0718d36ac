package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recast/pkg/agent"
)

// FileInput is one source file handed to a workflow. Inputs are an ordered
// slice rather than a map: insertion order is the documented tie-break for
// everything downstream (queue ordering, cycle fallback).
type FileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WorkflowState is the aggregate root threaded through the refactoring loop.
// The loop controller owns it exclusively; collaborators receive read views
// and return partial results the controller merges back explicitly.
type WorkflowState struct {
	ID   string `json:"id"`
	Goal string `json:"goal"`

	Files      map[string]*WorkItem `json:"files"`
	InputOrder []string             `json:"input_order"`

	FileQueue       []string `json:"file_queue"`
	QueueIndex      int      `json:"queue_index"`
	CurrentFilePath string   `json:"current_file_path,omitempty"`

	Targets      []RefactoringTarget `json:"targets,omitempty"`
	AnalysisNote string              `json:"analysis_note,omitempty"`

	// In-flight attempt for the current file.
	GeneratedSnapshot string `json:"generated_snapshot,omitempty"`
	GeneratedSummary  string `json:"generated_summary,omitempty"`

	ValidationHistory []ValidationOutcome `json:"validation_history"`
	ReflectionHistory []ReflectionNote    `json:"reflection_history"`

	IterationCount int `json:"iteration_count"`
	MaxIterations  int `json:"max_iterations"`

	ApprovalStatus ApprovalStatus `json:"approval_status"`
	// ReviewFeedback carries a reviewer's MODIFY text into the next
	// generation attempt; cleared once consumed.
	ReviewFeedback string `json:"review_feedback,omitempty"`

	// TerminalError is set at most once and signals unrecoverable failure.
	TerminalError string `json:"terminal_error,omitempty"`

	// CandidateHashes records every generated snapshot hash per file, in
	// generation order, for oscillation detection.
	CandidateHashes map[string][]string `json:"candidate_hashes"`

	CycleWarnings []string `json:"cycle_warnings,omitempty"`

	Status    agent.State `json:"status"`
	Cancelled bool        `json:"cancelled,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkflow builds the aggregate from ordered file inputs. The queue is
// empty until analysis runs.
func NewWorkflow(goal string, inputs []FileInput, maxIterations int) *WorkflowState {
	now := time.Now().UTC()
	ws := &WorkflowState{
		ID:                uuid.New().String(),
		Goal:              goal,
		Files:             make(map[string]*WorkItem, len(inputs)),
		InputOrder:        make([]string, 0, len(inputs)),
		ValidationHistory: []ValidationOutcome{},
		ReflectionHistory: []ReflectionNote{},
		MaxIterations:     maxIterations,
		ApprovalStatus:    ApprovalPending,
		CandidateHashes:   make(map[string][]string),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, in := range inputs {
		if _, exists := ws.Files[in.Path]; exists {
			continue // first occurrence wins
		}
		ws.Files[in.Path] = &WorkItem{
			FilePath:        in.Path,
			OriginalContent: in.Content,
			Status:          FilePending,
		}
		ws.InputOrder = append(ws.InputOrder, in.Path)
	}
	return ws
}

// Touch refreshes the update timestamp.
func (ws *WorkflowState) Touch() {
	ws.UpdatedAt = time.Now().UTC()
}

// Item returns the work item for a path, or nil.
func (ws *WorkflowState) Item(path string) *WorkItem {
	return ws.Files[path]
}

// CurrentItem returns the work item for the current file, or nil when no
// file is in flight.
func (ws *WorkflowState) CurrentItem() *WorkItem {
	if ws.CurrentFilePath == "" {
		return nil
	}
	return ws.Files[ws.CurrentFilePath]
}

// SetQueue installs the processing order and points the workflow at its
// first file. Every queued path must name a supplied file.
func (ws *WorkflowState) SetQueue(queue []string) error {
	for _, path := range queue {
		if _, ok := ws.Files[path]; !ok {
			return fmt.Errorf("queued path %q is not a workflow file", path)
		}
	}
	ws.FileQueue = queue
	ws.QueueIndex = 0
	if len(queue) > 0 {
		ws.CurrentFilePath = queue[0]
	}
	return nil
}

// AdvanceQueue moves to the next queued file, resetting the iteration
// counter. Returns false when the queue is exhausted.
func (ws *WorkflowState) AdvanceQueue() (string, bool) {
	if ws.QueueIndex+1 >= len(ws.FileQueue) {
		return "", false
	}
	ws.QueueIndex++
	ws.CurrentFilePath = ws.FileQueue[ws.QueueIndex]
	ws.IterationCount = 0
	ws.GeneratedSnapshot = ""
	ws.GeneratedSummary = ""
	ws.ReviewFeedback = ""
	return ws.CurrentFilePath, true
}

// SkipRemaining marks every file that has not reached a terminal status as
// SKIPPED with the given reason. Used when a workflow stops before the
// queue is exhausted.
func (ws *WorkflowState) SkipRemaining(reason string) int {
	skipped := 0
	for _, item := range ws.Files {
		if item.Status.IsTerminal() {
			continue
		}
		if item.SetStatus(FileSkipped) {
			if item.ErrorMessage == "" {
				item.ErrorMessage = reason
			}
			skipped++
		}
	}
	if skipped > 0 {
		ws.Touch()
	}
	return skipped
}

// RecordCandidateHash appends the hash of a generated candidate for the
// given file and reports whether it was already present (oscillation).
func (ws *WorkflowState) RecordCandidateHash(path, hash string) bool {
	for _, seen := range ws.CandidateHashes[path] {
		if seen == hash {
			return true
		}
	}
	ws.CandidateHashes[path] = append(ws.CandidateHashes[path], hash)
	return false
}

// AppendValidations grows the validation history. The controller computes
// the entries; nothing merges implicitly.
func (ws *WorkflowState) AppendValidations(outcomes ...ValidationOutcome) {
	ws.ValidationHistory = append(ws.ValidationHistory, outcomes...)
}

// AppendReflection grows the reflection history.
func (ws *WorkflowState) AppendReflection(note ReflectionNote) {
	ws.ReflectionHistory = append(ws.ReflectionHistory, note)
}

// RecentValidations returns the last n history entries that are real
// records, preserving order. Malformed entries are skipped.
func (ws *WorkflowState) RecentValidations(n int) []ValidationOutcome {
	if n <= 0 {
		return nil
	}
	start := len(ws.ValidationHistory) - n
	if start < 0 {
		start = 0
	}
	recent := make([]ValidationOutcome, 0, n)
	for _, outcome := range ws.ValidationHistory[start:] {
		if outcome.IsRecord() {
			recent = append(recent, outcome)
		}
	}
	return recent
}

// SetTerminalError records an unrecoverable failure. First write wins.
func (ws *WorkflowState) SetTerminalError(msg string) {
	if ws.TerminalError == "" {
		ws.TerminalError = msg
	}
}

// Snapshot serializes the aggregate for checkpointing.
func (ws *WorkflowState) Snapshot() ([]byte, error) {
	data, err := json.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workflow %s: %w", ws.ID, err)
	}
	return data, nil
}

// Restore rebuilds an aggregate from a snapshot.
func Restore(data []byte) (*WorkflowState, error) {
	var ws WorkflowState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to restore workflow snapshot: %w", err)
	}
	if ws.Files == nil {
		ws.Files = make(map[string]*WorkItem)
	}
	if ws.CandidateHashes == nil {
		ws.CandidateHashes = make(map[string][]string)
	}
	return &ws, nil
}

// Clone deep-copies the aggregate via a snapshot round-trip.
func (ws *WorkflowState) Clone() (*WorkflowState, error) {
	data, err := ws.Snapshot()
	if err != nil {
		return nil, err
	}
	return Restore(data)
}

// Summary is the read-only view surfaced by the status operation.
type Summary struct {
	ID             string                `json:"id"`
	Goal           string                `json:"goal"`
	Status         string                `json:"status"`
	CurrentFile    string                `json:"current_file,omitempty"`
	IterationCount int                   `json:"iteration_count"`
	MaxIterations  int                   `json:"max_iterations"`
	ApprovalStatus ApprovalStatus        `json:"approval_status"`
	TerminalError  string                `json:"terminal_error,omitempty"`
	Cancelled      bool                  `json:"cancelled,omitempty"`
	Files          map[string]FileStatus `json:"files"`
	FilesTotal     int                   `json:"files_total"`
	FilesCompleted int                   `json:"files_completed"`
	FilesFailed    int                   `json:"files_failed"`
	Reflections    int                   `json:"reflections"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Summarize produces the status view.
func (ws *WorkflowState) Summarize() Summary {
	s := Summary{
		ID:             ws.ID,
		Goal:           ws.Goal,
		Status:         string(ws.Status),
		CurrentFile:    ws.CurrentFilePath,
		IterationCount: ws.IterationCount,
		MaxIterations:  ws.MaxIterations,
		ApprovalStatus: ws.ApprovalStatus,
		TerminalError:  ws.TerminalError,
		Cancelled:      ws.Cancelled,
		Files:          make(map[string]FileStatus, len(ws.Files)),
		FilesTotal:     len(ws.Files),
		Reflections:    len(ws.ReflectionHistory),
		CreatedAt:      ws.CreatedAt,
		UpdatedAt:      ws.UpdatedAt,
	}
	for path, item := range ws.Files {
		s.Files[path] = item.Status
		switch item.Status {
		case FileCompleted:
			s.FilesCompleted++
		case FileFailed:
			s.FilesFailed++
		case FilePending, FileInProgress, FileSkipped:
		}
	}
	return s
}
