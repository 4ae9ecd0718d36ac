package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recast/pkg/analyzer"
	"recast/pkg/config"
	"recast/pkg/diff"
	"recast/pkg/gate"
	"recast/pkg/generator"
	"recast/pkg/loop"
	"recast/pkg/persistence"
	"recast/pkg/state"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, _ string, inputs []state.FileInput) (analyzer.AnalysisResult, error) {
	queue := make([]string, 0, len(inputs))
	for _, in := range inputs {
		queue = append(queue, in.Path)
	}
	return analyzer.AnalysisResult{Queue: queue}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, req generator.Request) (generator.Generation, error) {
	content := req.Item.OriginalContent + "# refactored\n"
	return generator.Generation{
		ModifiedContent: content,
		Diff:            diff.Unified(req.Item.FilePath, req.Item.OriginalContent, content),
		Summary:         "stub rewrite",
		Strategy:        generator.StrategyTransform,
	}, nil
}

type stubValidator struct{}

func (stubValidator) Validate(_ context.Context, _ string) []state.ValidationOutcome {
	return []state.ValidationOutcome{{ToolName: "syntax", Passed: true}}
}

type stubReflector struct{}

func (stubReflector) Reflect(_ context.Context, _, _, _ string, _ []state.ValidationOutcome, iteration int) state.ReflectionNote {
	return state.ReflectionNote{Iteration: iteration}
}

func newTestManager(reviewer *gate.StoreReviewer) *Manager {
	deps := loop.Deps{
		Analyzer:  stubAnalyzer{},
		Generator: stubGenerator{},
		Validator: stubValidator{},
		Reflector: stubReflector{},
	}
	if reviewer != nil {
		deps.Reviewer = reviewer
	}
	return New(Options{
		Config:   config.DefaultConfig(),
		Reviewer: reviewer,
		Build: func(ws *state.WorkflowState) (*loop.Machine, error) {
			return loop.NewMachine(ws, deps), nil
		},
		Rebuild: func(snapshot []byte, step int) (*loop.Machine, error) {
			return loop.Resume(snapshot, step, deps)
		},
	})
}

func sampleFiles() []state.FileInput {
	return []state.FileInput{{Path: "a.py", Content: "x = 1\n"}}
}

func TestStartRejectsBadInput(t *testing.T) {
	m := newTestManager(nil)
	if _, err := m.Start("", sampleFiles(), 3); err == nil {
		t.Error("Expected an error for an empty goal")
	}
	if _, err := m.Start("goal", nil, 3); err == nil {
		t.Error("Expected an error for empty files")
	}
}

func TestStartRunsWorkflowToCompletion(t *testing.T) {
	m := newTestManager(nil)
	id, err := m.Start("Add type hints", sampleFiles(), 3)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Wait(id); err != nil {
		t.Fatalf("Workflow failed: %v", err)
	}

	summary, err := m.Status(id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if summary.Status != loop.StateDone.String() {
		t.Errorf("Expected DONE, got %s", summary.Status)
	}
	if summary.FilesCompleted != 1 {
		t.Errorf("Expected 1 completed file, got %d", summary.FilesCompleted)
	}
	if len(m.List()) != 1 {
		t.Errorf("Expected 1 workflow listed, got %d", len(m.List()))
	}
}

// slowGenerator paces the driver so status reads overlap live transitions.
type slowGenerator struct{ delay time.Duration }

func (g slowGenerator) Generate(_ context.Context, req generator.Request) (generator.Generation, error) {
	time.Sleep(g.delay)
	content := req.Item.OriginalContent + "# refactored\n"
	return generator.Generation{
		ModifiedContent: content,
		Summary:         "slow rewrite",
		Strategy:        generator.StrategyTransform,
	}, nil
}

func TestStatusWhileDriverRuns(t *testing.T) {
	deps := loop.Deps{
		Analyzer:  stubAnalyzer{},
		Generator: slowGenerator{delay: 2 * time.Millisecond},
		Validator: stubValidator{},
		Reflector: stubReflector{},
	}
	m := New(Options{
		Config: config.DefaultConfig(),
		Build: func(ws *state.WorkflowState) (*loop.Machine, error) {
			return loop.NewMachine(ws, deps), nil
		},
	})

	files := make([]state.FileInput, 0, 8)
	for i := 0; i < 8; i++ {
		files = append(files, state.FileInput{
			Path:    fmt.Sprintf("f%d.py", i),
			Content: fmt.Sprintf("x = %d\n", i),
		})
	}
	id, err := m.Start("goal", files, 3)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Hammer the status surface while the driver advances through the
	// queue. Under the race detector this fails if status ever reads the
	// live aggregate instead of a published summary.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if s, serr := m.Status(id); serr == nil && s.FilesTotal != len(files) {
					t.Errorf("Expected %d files in summary, got %d", len(files), s.FilesTotal)
					return
				}
				m.List()
			}
		}()
	}

	if err := m.Wait(id); err != nil {
		t.Fatalf("Workflow failed: %v", err)
	}
	close(done)
	wg.Wait()

	summary, err := m.Status(id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if summary.Status != loop.StateDone.String() {
		t.Errorf("Expected DONE, got %s", summary.Status)
	}
	if summary.FilesCompleted != len(files) {
		t.Errorf("Expected %d completed files, got %d", len(files), summary.FilesCompleted)
	}
}

func TestStatusUnknownWorkflow(t *testing.T) {
	m := newTestManager(nil)
	if _, err := m.Status("missing"); !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("Expected ErrUnknownWorkflow, got %v", err)
	}
}

func TestResumeDeliversReviewDecision(t *testing.T) {
	reviewer := gate.NewStoreReviewer()
	m := newTestManager(reviewer)

	id, err := m.Start("goal", sampleFiles(), 3)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for the workflow to suspend at the gate, then approve.
	deadline := time.After(5 * time.Second)
	for {
		if _, pending := reviewer.Pending(id); pending {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Workflow never suspended for review")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := m.Resume(id, "approve", ""); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := m.Wait(id); err != nil {
		t.Fatalf("Workflow failed: %v", err)
	}

	summary, _ := m.Status(id)
	if summary.ApprovalStatus != state.ApprovalApproved {
		t.Errorf("Expected APPROVED, got %s", summary.ApprovalStatus)
	}
	if summary.FilesCompleted != 1 {
		t.Errorf("Expected 1 completed file, got %d", summary.FilesCompleted)
	}
}

func TestResumeValidation(t *testing.T) {
	reviewer := gate.NewStoreReviewer()
	m := newTestManager(reviewer)
	if err := m.Resume("id", "explode", ""); err == nil {
		t.Error("Expected an error for an unknown action")
	}
	if err := m.Resume("id", "modify", "  "); err == nil {
		t.Error("Expected an error for modify without feedback")
	}

	noGate := newTestManager(nil)
	if err := noGate.Resume("id", "approve", ""); err == nil {
		t.Error("Expected an error when the gate is not in api mode")
	}
}

func TestCancelSuspendedWorkflow(t *testing.T) {
	reviewer := gate.NewStoreReviewer()
	m := newTestManager(reviewer)

	id, err := m.Start("goal", sampleFiles(), 3)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		if _, pending := reviewer.Pending(id); pending {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Workflow never suspended for review")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := m.Cancel(id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := m.Wait(id); err == nil {
		t.Error("Expected the cancelled workflow to surface an error")
	}

	summary, _ := m.Status(id)
	if !summary.Cancelled {
		t.Error("Expected the workflow marked cancelled")
	}
}

func newStoreManager(store *persistence.Store, reviewer *gate.StoreReviewer) *Manager {
	deps := loop.Deps{
		Analyzer:    stubAnalyzer{},
		Generator:   stubGenerator{},
		Validator:   stubValidator{},
		Reflector:   stubReflector{},
		Checkpoints: store,
	}
	if reviewer != nil {
		deps.Reviewer = reviewer
	}
	return New(Options{
		Config:   config.DefaultConfig(),
		Store:    store,
		Reviewer: reviewer,
		Build: func(ws *state.WorkflowState) (*loop.Machine, error) {
			return loop.NewMachine(ws, deps), nil
		},
		Rebuild: func(snapshot []byte, step int) (*loop.Machine, error) {
			return loop.Resume(snapshot, step, deps)
		},
	})
}

func awaitPending(t *testing.T, reviewer *gate.StoreReviewer, id string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if _, pending := reviewer.Pending(id); pending {
			return
		}
		select {
		case <-deadline:
			t.Fatal("Workflow never suspended for review")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestResumeFromCheckpoint(t *testing.T) {
	store, err := persistence.Open(filepath.Join(t.TempDir(), "recast.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	// First manager suspends at the gate; the AWAITING_REVIEW entry is
	// checkpointed, so a second manager can pick the workflow up.
	reviewerA := gate.NewStoreReviewer()
	first := newStoreManager(store, reviewerA)
	id, err := first.Start("goal", sampleFiles(), 3)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	awaitPending(t, reviewerA, id)
	defer func() {
		_ = first.Cancel(id)
		_ = first.Wait(id)
	}()

	reviewerB := gate.NewStoreReviewer()
	second := newStoreManager(store, reviewerB)
	if err := second.ResumeFromCheckpoint(context.Background(), id); err != nil {
		t.Fatalf("ResumeFromCheckpoint failed: %v", err)
	}
	if err := second.ResumeFromCheckpoint(context.Background(), id); err == nil {
		t.Error("Expected an error resuming an already-running workflow")
	}

	awaitPending(t, reviewerB, id)
	if err := second.Resume(id, "approve", ""); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := second.Wait(id); err != nil {
		t.Fatalf("Resumed workflow failed: %v", err)
	}

	summary, err := second.Status(id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if summary.FilesCompleted != 1 {
		t.Errorf("Expected 1 completed file, got %d", summary.FilesCompleted)
	}
}
