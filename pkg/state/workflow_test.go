package state

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func sampleInputs() []FileInput {
	return []FileInput{
		{Path: "a.py", Content: "def f(x):\n    return x\n"},
		{Path: "b.py", Content: "import a\n"},
	}
}

func TestNewWorkflow(t *testing.T) {
	ws := NewWorkflow("Add type hints", sampleInputs(), 3)

	if ws.ID == "" {
		t.Error("Expected generated workflow ID")
	}
	if len(ws.Files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(ws.Files))
	}
	if ws.Files["a.py"].Status != FilePending {
		t.Errorf("Expected PENDING, got %s", ws.Files["a.py"].Status)
	}
	if !reflect.DeepEqual(ws.InputOrder, []string{"a.py", "b.py"}) {
		t.Errorf("Unexpected input order: %v", ws.InputOrder)
	}
	if ws.MaxIterations != 3 {
		t.Errorf("Expected max iterations 3, got %d", ws.MaxIterations)
	}
	if ws.ApprovalStatus != ApprovalPending {
		t.Errorf("Expected approval PENDING, got %s", ws.ApprovalStatus)
	}
}

func TestNewWorkflowDeduplicatesPaths(t *testing.T) {
	ws := NewWorkflow("goal", []FileInput{
		{Path: "a.py", Content: "first"},
		{Path: "a.py", Content: "second"},
	}, 3)

	if len(ws.Files) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(ws.Files))
	}
	if ws.Files["a.py"].OriginalContent != "first" {
		t.Error("Expected first occurrence to win")
	}
}

func TestFileStatusMonotonic(t *testing.T) {
	testCases := []struct {
		from  FileStatus
		to    FileStatus
		valid bool
	}{
		{FilePending, FileInProgress, true},
		{FilePending, FileSkipped, true},
		{FileInProgress, FileCompleted, true},
		{FileInProgress, FileFailed, true},
		{FileInProgress, FileSkipped, true},
		{FilePending, FileCompleted, false},
		{FileCompleted, FilePending, false},
		{FileFailed, FileInProgress, false},
		{FileCompleted, FileFailed, false},
		{FileSkipped, FileInProgress, false},
	}

	for _, tc := range testCases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.valid {
			t.Errorf("CanTransitionTo(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.valid)
		}
	}
}

func TestSetStatusRejectsIllegalChange(t *testing.T) {
	item := &WorkItem{FilePath: "a.py", Status: FilePending}

	if item.SetStatus(FileCompleted) {
		t.Error("Expected PENDING -> COMPLETED to be rejected")
	}
	if !item.SetStatus(FileInProgress) {
		t.Error("Expected PENDING -> IN_PROGRESS to be accepted")
	}
	if !item.SetStatus(FileFailed) {
		t.Error("Expected IN_PROGRESS -> FAILED to be accepted")
	}
	if item.SetStatus(FileInProgress) {
		t.Error("Expected FAILED to be terminal")
	}
}

func TestSetQueueRejectsForeignPath(t *testing.T) {
	ws := NewWorkflow("goal", sampleInputs(), 3)

	if err := ws.SetQueue([]string{"a.py", "zzz.py"}); err == nil {
		t.Error("Expected error for path not in workflow")
	}
	if err := ws.SetQueue([]string{"a.py", "b.py"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if ws.CurrentFilePath != "a.py" {
		t.Errorf("Expected current file a.py, got %s", ws.CurrentFilePath)
	}
}

func TestAdvanceQueue(t *testing.T) {
	ws := NewWorkflow("goal", sampleInputs(), 3)
	if err := ws.SetQueue([]string{"a.py", "b.py"}); err != nil {
		t.Fatal(err)
	}
	ws.IterationCount = 2
	ws.GeneratedSnapshot = "leftover"
	ws.ReviewFeedback = "leftover"

	next, ok := ws.AdvanceQueue()
	if !ok || next != "b.py" {
		t.Fatalf("Expected advance to b.py, got (%s, %v)", next, ok)
	}
	if ws.IterationCount != 0 {
		t.Errorf("Expected iteration reset, got %d", ws.IterationCount)
	}
	if ws.GeneratedSnapshot != "" || ws.ReviewFeedback != "" {
		t.Error("Expected in-flight attempt cleared on advance")
	}

	if _, ok := ws.AdvanceQueue(); ok {
		t.Error("Expected queue exhaustion")
	}
}

func TestSkipRemaining(t *testing.T) {
	ws := NewWorkflow("goal", []FileInput{
		{Path: "a.py", Content: "x"},
		{Path: "b.py", Content: "y"},
		{Path: "c.py", Content: "z"},
	}, 3)
	ws.Files["a.py"].SetStatus(FileInProgress)
	ws.Files["a.py"].SetStatus(FileCompleted)
	ws.Files["b.py"].SetStatus(FileInProgress)

	if got := ws.SkipRemaining("stopped"); got != 2 {
		t.Fatalf("Expected 2 skipped, got %d", got)
	}
	if ws.Files["a.py"].Status != FileCompleted {
		t.Error("Completed file must not be skipped")
	}
	if ws.Files["b.py"].Status != FileSkipped || ws.Files["c.py"].Status != FileSkipped {
		t.Error("Expected unfinished files to be SKIPPED")
	}
	if ws.Files["c.py"].ErrorMessage != "stopped" {
		t.Errorf("Expected skip reason, got %q", ws.Files["c.py"].ErrorMessage)
	}
}

func TestRecordCandidateHash(t *testing.T) {
	ws := NewWorkflow("goal", sampleInputs(), 3)

	h1 := HashContent("candidate one")
	if dup := ws.RecordCandidateHash("a.py", h1); dup {
		t.Error("First hash should not be a duplicate")
	}
	if dup := ws.RecordCandidateHash("a.py", h1); !dup {
		t.Error("Repeated hash should be a duplicate")
	}
	// Same hash under another file is independent.
	if dup := ws.RecordCandidateHash("b.py", h1); dup {
		t.Error("Hash sets are per file")
	}
}

func TestRecentValidationsFiltersAndCaps(t *testing.T) {
	ws := NewWorkflow("goal", sampleInputs(), 3)

	for i := 0; i < 7; i++ {
		ws.AppendValidations(ValidationOutcome{
			ToolName:  "syntax",
			Passed:    i%2 == 0,
			Timestamp: time.Now().UTC(),
		})
	}
	// A malformed entry must be skipped, not counted as failing.
	ws.AppendValidations(ValidationOutcome{})

	recent := ws.RecentValidations(5)
	if len(recent) != 4 {
		t.Fatalf("Expected 4 real records in last 5 slots, got %d", len(recent))
	}
	for _, outcome := range recent {
		if !outcome.IsRecord() {
			t.Error("Malformed entry leaked through filter")
		}
	}
}

func TestSetTerminalErrorFirstWriteWins(t *testing.T) {
	ws := NewWorkflow("goal", sampleInputs(), 3)

	ws.SetTerminalError("first")
	ws.SetTerminalError("second")
	if ws.TerminalError != "first" {
		t.Errorf("Expected first error kept, got %s", ws.TerminalError)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ws := NewWorkflow("Add type hints", sampleInputs(), 3)
	if err := ws.SetQueue([]string{"a.py", "b.py"}); err != nil {
		t.Fatal(err)
	}
	ws.Status = "VALIDATING"
	ws.IterationCount = 2
	ws.Files["a.py"].SetStatus(FileInProgress)
	ws.Files["a.py"].ModifiedContent = "def f(x: int):\n    return x\n"
	ws.Files["a.py"].Diff = "--- a.py\n+++ a.py\n"
	ws.AppendValidations(ValidationOutcome{
		ToolName:     "syntax",
		Passed:       false,
		ErrorMessage: "SyntaxError at line 1",
		ExitCode:     1,
		DurationMS:   12,
		Timestamp:    time.Now().UTC().Truncate(time.Millisecond),
	})
	ws.AppendReflection(ReflectionNote{
		Iteration:    1,
		ErrorSummary: "missing colon",
		SuggestedFix: "add colon",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	})
	ws.RecordCandidateHash("a.py", HashContent("x"))

	data, err := ws.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored, err := Restore(data)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	// Compare via re-serialization: the snapshot must be reproducible
	// bit-for-bit for suspend/resume.
	again, err := restored.Snapshot()
	if err != nil {
		t.Fatalf("re-Snapshot failed: %v", err)
	}
	if string(data) != string(again) {
		t.Error("Snapshot round-trip is not stable")
	}

	if restored.IterationCount != 2 {
		t.Errorf("Expected iteration 2, got %d", restored.IterationCount)
	}
	if restored.Files["a.py"].Status != FileInProgress {
		t.Errorf("Expected IN_PROGRESS, got %s", restored.Files["a.py"].Status)
	}
	if len(restored.ValidationHistory) != 1 || len(restored.ReflectionHistory) != 1 {
		t.Error("Histories did not survive round-trip")
	}
	if len(restored.CandidateHashes["a.py"]) != 1 {
		t.Error("Candidate hashes did not survive round-trip")
	}
}

func TestSummarize(t *testing.T) {
	ws := NewWorkflow("goal", sampleInputs(), 3)
	ws.Files["a.py"].SetStatus(FileInProgress)
	ws.Files["a.py"].SetStatus(FileCompleted)
	ws.Files["b.py"].SetStatus(FileInProgress)
	ws.Files["b.py"].SetStatus(FileFailed)
	ws.Status = "DONE"

	s := ws.Summarize()
	if s.FilesTotal != 2 || s.FilesCompleted != 1 || s.FilesFailed != 1 {
		t.Errorf("Unexpected summary counts: %+v", s)
	}
	if s.Files["a.py"] != FileCompleted {
		t.Errorf("Expected a.py COMPLETED in summary, got %s", s.Files["a.py"])
	}

	// Summary itself must serialize for the status endpoint.
	if _, err := json.Marshal(s); err != nil {
		t.Errorf("Summary not serializable: %v", err)
	}
}

func TestHashContentStable(t *testing.T) {
	h1 := HashContent("same input")
	h2 := HashContent("same input")
	h3 := HashContent("different input")

	if h1 != h2 {
		t.Error("Hash must be deterministic")
	}
	if h1 == h3 {
		t.Error("Different content must hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("Expected hex SHA-256 length 64, got %d", len(h1))
	}
}
