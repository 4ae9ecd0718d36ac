package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"recast/pkg/agent"
	"recast/pkg/analyzer"
	"recast/pkg/gate"
	"recast/pkg/generator"
	"recast/pkg/logx"
	"recast/pkg/state"
)

// Collaborator contracts. The concrete implementations live in their own
// packages; tests substitute fakes.

// Analyzer plans the workflow: queue, targets, diagnostic note.
type Analyzer interface {
	Analyze(ctx context.Context, goal string, inputs []state.FileInput) (analyzer.AnalysisResult, error)
}

// Generator produces one candidate rewrite per attempt.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (generator.Generation, error)
}

// Validator runs the check pipeline over a candidate.
type Validator interface {
	Validate(ctx context.Context, code string) []state.ValidationOutcome
}

// Reflector digests failures into guidance for the next attempt.
type Reflector interface {
	Reflect(ctx context.Context, goal, filePath, code string, failures []state.ValidationOutcome, iteration int) state.ReflectionNote
}

// Committer writes an approved candidate back to its file.
type Committer interface {
	Commit(path, content string) error
}

// Checkpointer snapshots the aggregate at every state-machine boundary.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, workflowID string, step int, node string, snapshot []byte) error
}

// Progress counts workflow-level events. The metrics recorder implements
// it; nil disables counting.
type Progress interface {
	IncIteration(workflowID string)
	IncEscalation(workflowID, reason string)
	IncFileProcessed(workflowID, status string)
}

// Deps carries the machine's collaborators. Reviewer nil disables the human
// gate (validation success completes the file directly); Committer nil skips
// writing approved changes; Checkpoints nil disables persistence.
type Deps struct {
	Analyzer    Analyzer
	Generator   Generator
	Validator   Validator
	Reflector   Reflector
	Reviewer    gate.Reviewer
	Committer   Committer
	Checkpoints Checkpointer
	Progress    Progress
}

// Machine drives one workflow through the refactoring loop. It exclusively
// owns the WorkflowState aggregate: handlers are the only writers, one
// transition completes and persists before the next step reads the state.
type Machine struct {
	*agent.BaseMachine

	ws   *state.WorkflowState
	deps Deps
	step int
	log  *logx.Logger

	summaryMu sync.Mutex
	summary   state.Summary
}

// NewMachine creates a machine for a fresh workflow, starting at ANALYZING.
func NewMachine(ws *state.WorkflowState, deps Deps) *Machine {
	m := &Machine{
		BaseMachine: agent.NewBaseMachine(ws.ID, StateAnalyzing, Transitions),
		ws:          ws,
		deps:        deps,
		log:         logx.NewLogger("loop:" + ws.ID),
	}
	ws.Status = StateAnalyzing
	m.SetPersister(m.persistTransition)
	m.PublishSummary()
	return m
}

// Resume rebuilds a machine from a persisted snapshot, continuing from the
// state it suspended in.
func Resume(snapshot []byte, step int, deps Deps) (*Machine, error) {
	ws, err := state.Restore(snapshot)
	if err != nil {
		return nil, err
	}
	if ws.Status == "" {
		ws.Status = StateAnalyzing
	}
	m := &Machine{
		BaseMachine: agent.NewBaseMachine(ws.ID, ws.Status, Transitions),
		ws:          ws,
		deps:        deps,
		step:        step,
		log:         logx.NewLogger("loop:" + ws.ID),
	}
	m.SetPersister(m.persistTransition)
	m.PublishSummary()
	return m, nil
}

// State returns the aggregate. Only the driver goroutine may touch it while
// the machine runs; concurrent observers use Summary instead.
func (m *Machine) State() *state.WorkflowState {
	return m.ws
}

// Summary returns the last published status view. Safe from any goroutine:
// the machine republishes on every transition, so observers never read the
// aggregate while a handler mutates it.
func (m *Machine) Summary() state.Summary {
	m.summaryMu.Lock()
	defer m.summaryMu.Unlock()
	return m.summary
}

// PublishSummary recomputes the status view from the aggregate. Only the
// goroutine that owns the aggregate may call it.
func (m *Machine) PublishSummary() {
	s := m.ws.Summarize()
	m.summaryMu.Lock()
	m.summary = s
	m.summaryMu.Unlock()
}

// WorkflowID implements llm.LabelProvider.
func (m *Machine) WorkflowID() string {
	return m.ws.ID
}

// Phase implements llm.LabelProvider.
func (m *Machine) Phase() string {
	return m.GetCurrentState().String()
}

// ProcessState runs the handler for the current state and returns the next
// edge. Handlers never transition themselves; the driver does.
func (m *Machine) ProcessState(ctx context.Context) (agent.State, bool, error) {
	switch current := m.GetCurrentState(); current {
	case StateAnalyzing:
		return m.handleAnalyzing(ctx)
	case StateGenerating:
		return m.handleGenerating(ctx)
	case StateValidating:
		return m.handleValidating(ctx)
	case StateReflecting:
		return m.handleReflecting(ctx)
	case StateAwaitingReview:
		return m.handleAwaitingReview(ctx)
	case StateSuccess:
		return m.handleSuccess()
	case StateEscalating:
		return m.handleEscalating()
	case StateDone:
		return StateDone, true, nil
	default:
		return current, false, fmt.Errorf("no handler for state %s", current)
	}
}

// Persist snapshots the aggregate under the current state's node name.
func (m *Machine) Persist(ctx context.Context) error {
	return m.saveCheckpoint(ctx, m.GetCurrentState().String())
}

// persistTransition is the BaseMachine hook: record the entered state on the
// aggregate, then checkpoint.
func (m *Machine) persistTransition(ctx context.Context, _ string, entered agent.State) error {
	m.ws.Status = entered
	m.ws.Touch()
	m.PublishSummary()
	return m.saveCheckpoint(ctx, entered.String())
}

func (m *Machine) saveCheckpoint(ctx context.Context, node string) error {
	if m.deps.Checkpoints == nil {
		return nil
	}
	snapshot, err := m.ws.Snapshot()
	if err != nil {
		return err
	}
	m.step++
	if err := m.deps.Checkpoints.SaveCheckpoint(ctx, m.ws.ID, m.step, node, snapshot); err != nil {
		return fmt.Errorf("checkpoint at %s: %w", node, err)
	}
	return nil
}

// handleAnalyzing orders the files and identifies targets. Empty input is
// the one hard failure; an analyzer running in degraded mode still yields a
// usable queue.
func (m *Machine) handleAnalyzing(ctx context.Context) (agent.State, bool, error) {
	ws := m.ws
	inputs := make([]state.FileInput, 0, len(ws.InputOrder))
	for _, path := range ws.InputOrder {
		inputs = append(inputs, state.FileInput{Path: path, Content: ws.Files[path].OriginalContent})
	}

	res, err := m.deps.Analyzer.Analyze(ctx, ws.Goal, inputs)
	if err != nil {
		ws.SetTerminalError(fmt.Sprintf("analysis failed: %v", err))
		ws.SkipRemaining("not processed: analysis failed")
		return StateDone, false, nil
	}
	if err := ws.SetQueue(res.Queue); err != nil {
		ws.SetTerminalError(fmt.Sprintf("analysis produced an invalid queue: %v", err))
		ws.SkipRemaining("not processed: analysis failed")
		return StateDone, false, nil
	}
	ws.Targets = res.Targets
	ws.AnalysisNote = res.Note
	ws.CycleWarnings = res.CycleWarnings

	m.log.Info("analysis complete: %d files queued, %d targets", len(res.Queue), len(res.Targets))
	return StateGenerating, false, nil
}

// handleGenerating produces a candidate for the current file and checks it
// against the oscillation hash set before validation is spent on it.
func (m *Machine) handleGenerating(ctx context.Context) (agent.State, bool, error) {
	ws := m.ws
	item := ws.CurrentItem()
	if item == nil {
		return "", false, errors.New("generating with no current file")
	}
	if item.Status == state.FilePending {
		item.SetStatus(state.FileInProgress)
	}

	feedback := ws.ReviewFeedback
	ws.ReviewFeedback = ""

	var reflection *state.ReflectionNote
	if feedback == "" && ws.IterationCount > 0 && len(ws.ReflectionHistory) > 0 {
		last := ws.ReflectionHistory[len(ws.ReflectionHistory)-1]
		reflection = &last
	}

	gen, err := m.deps.Generator.Generate(ctx, generator.Request{
		Item:           item,
		Goal:           ws.Goal,
		Iteration:      ws.IterationCount,
		MaxIterations:  ws.MaxIterations,
		Reflection:     reflection,
		ReviewFeedback: feedback,
		Plan:           ws.AnalysisNote,
	})
	if err != nil {
		return "", false, fmt.Errorf("generation for %s: %w", item.FilePath, err)
	}

	ws.GeneratedSnapshot = gen.ModifiedContent
	ws.GeneratedSummary = gen.Summary
	item.ModifiedContent = gen.ModifiedContent
	item.Diff = gen.Diff

	hash := state.HashContent(gen.ModifiedContent)
	if ws.RecordCandidateHash(item.FilePath, hash) {
		item.ErrorMessage = fmt.Sprintf(
			"oscillation detected for %s: attempt %d regenerated a previously rejected candidate; further retries are futile",
			item.FilePath, ws.IterationCount)
		m.log.Warn("%s", item.ErrorMessage)
		m.countEscalation("oscillation")
		return StateEscalating, false, nil
	}

	m.log.Info("generated candidate for %s via %s (iteration %d)", item.FilePath, gen.Strategy, ws.IterationCount)
	return StateValidating, false, nil
}

// handleValidating runs the pipeline, appends the outcomes, and routes on
// the most recent batch.
func (m *Machine) handleValidating(ctx context.Context) (agent.State, bool, error) {
	ws := m.ws
	outcomes := m.deps.Validator.Validate(ctx, ws.GeneratedSnapshot)
	ws.AppendValidations(outcomes...)

	recent := ws.RecentValidations(recentWindow)
	switch Route(recent, ws.IterationCount, ws.MaxIterations) {
	case DecisionSuccess:
		if m.deps.Reviewer != nil {
			return StateAwaitingReview, false, nil
		}
		return StateSuccess, false, nil
	case DecisionReflect:
		return StateReflecting, false, nil
	default:
		if item := ws.CurrentItem(); item != nil && item.ErrorMessage == "" {
			item.ErrorMessage = fmt.Sprintf(
				"escalated after %d of %d iterations without a passing validation; failing checks: %s",
				ws.IterationCount, ws.MaxIterations, strings.Join(failingChecks(recent), ", "))
		}
		m.countEscalation("budget_exhausted")
		return StateEscalating, false, nil
	}
}

// handleReflecting digests the recent failures and consumes one iteration.
// The counter increments on every REFLECTING pass, failures or not, so the
// loop always terminates.
func (m *Machine) handleReflecting(ctx context.Context) (agent.State, bool, error) {
	ws := m.ws
	note := m.deps.Reflector.Reflect(ctx, ws.Goal, ws.CurrentFilePath, ws.GeneratedSnapshot,
		ws.RecentValidations(recentWindow), ws.IterationCount)
	ws.AppendReflection(note)
	ws.IterationCount++
	if m.deps.Progress != nil {
		m.deps.Progress.IncIteration(ws.ID)
	}

	m.log.Info("reflection recorded for %s, iteration now %d of %d",
		ws.CurrentFilePath, ws.IterationCount, ws.MaxIterations)
	return StateGenerating, false, nil
}

// handleAwaitingReview suspends the workflow at the human gate. The state
// was checkpointed on entry, so a process restart resumes here; cancelling a
// suspended workflow marks it cancelled without touching the work item.
func (m *Machine) handleAwaitingReview(ctx context.Context) (agent.State, bool, error) {
	ws := m.ws
	item := ws.CurrentItem()
	if item == nil {
		return "", false, errors.New("awaiting review with no current file")
	}

	decision, err := m.deps.Reviewer.AwaitReview(ctx, gate.ReviewRequest{
		WorkflowID:       ws.ID,
		FilePath:         item.FilePath,
		Goal:             ws.Goal,
		Summary:          ws.GeneratedSummary,
		Diff:             item.Diff,
		ValidationReport: formatReport(ws.RecentValidations(recentWindow)),
		Iteration:        ws.IterationCount,
		MaxIterations:    ws.MaxIterations,
	})
	if err != nil {
		if ctx.Err() != nil {
			ws.Cancelled = true
			ws.Touch()
			if perr := m.saveCheckpoint(context.WithoutCancel(ctx), "cancelled"); perr != nil {
				m.log.Warn("failed to checkpoint cancellation: %v", perr)
			}
			return "", false, fmt.Errorf("workflow cancelled during review: %w", err)
		}
		return "", false, fmt.Errorf("review for %s: %w", item.FilePath, err)
	}

	switch decision.Action {
	case gate.ActionApprove:
		ws.ApprovalStatus = state.ApprovalApproved
		m.log.Info("reviewer approved %s", item.FilePath)
		return StateSuccess, false, nil
	case gate.ActionReject:
		ws.ApprovalStatus = state.ApprovalRejected
		item.ErrorMessage = rejectMessage(decision.Feedback)
		m.log.Info("reviewer rejected %s", item.FilePath)
		m.countEscalation("review_rejected")
		return StateEscalating, false, nil
	case gate.ActionModify:
		// A change request consumes the regular retry edge; with the budget
		// spent there is no iteration left to serve it.
		if ws.IterationCount >= ws.MaxIterations {
			item.ErrorMessage = fmt.Sprintf(
				"reviewer requested changes to %s but all %d iterations are spent",
				item.FilePath, ws.MaxIterations)
			m.log.Warn("%s", item.ErrorMessage)
			m.countEscalation("budget_exhausted")
			return StateEscalating, false, nil
		}
		ws.ReviewFeedback = decision.Feedback
		ws.IterationCount++
		m.log.Info("reviewer requested changes to %s, iteration now %d", item.FilePath, ws.IterationCount)
		return StateGenerating, false, nil
	default:
		return "", false, fmt.Errorf("reviewer returned unknown action %q", decision.Action)
	}
}

// handleSuccess completes the current file, writes the approved content when
// a committer is configured, and advances the queue.
func (m *Machine) handleSuccess() (agent.State, bool, error) {
	ws := m.ws
	item := ws.CurrentItem()
	if item == nil {
		return "", false, errors.New("success with no current file")
	}
	item.SetStatus(state.FileCompleted)

	if m.deps.Committer != nil {
		if err := m.deps.Committer.Commit(item.FilePath, item.ModifiedContent); err != nil {
			m.log.Warn("failed to write approved change for %s: %v", item.FilePath, err)
			item.ErrorMessage = fmt.Sprintf("change approved but not written: %v", err)
		}
	}
	m.log.Info("file %s completed", item.FilePath)
	if m.deps.Progress != nil {
		m.deps.Progress.IncFileProcessed(ws.ID, string(state.FileCompleted))
	}
	return m.advance()
}

// handleEscalating fails the current file and advances the queue. One
// file's exhaustion never aborts the run while others remain.
func (m *Machine) handleEscalating() (agent.State, bool, error) {
	ws := m.ws
	item := ws.CurrentItem()
	if item == nil {
		return "", false, errors.New("escalating with no current file")
	}
	if item.ErrorMessage == "" {
		item.ErrorMessage = fmt.Sprintf(
			"escalated after %d of %d iterations without a passing validation",
			ws.IterationCount, ws.MaxIterations)
	}
	item.SetStatus(state.FileFailed)
	m.log.Warn("file %s failed: %s", item.FilePath, item.ErrorMessage)
	if m.deps.Progress != nil {
		m.deps.Progress.IncFileProcessed(ws.ID, string(state.FileFailed))
	}
	return m.advance()
}

// advance moves to the next queued file or finishes the workflow. The queue
// order is fixed at analysis time; advancement resets the per-file attempt
// bookkeeping.
func (m *Machine) advance() (agent.State, bool, error) {
	if next, ok := m.ws.AdvanceQueue(); ok {
		m.ws.ApprovalStatus = state.ApprovalPending
		m.log.Info("advancing to %s (%d of %d)", next, m.ws.QueueIndex+1, len(m.ws.FileQueue))
		return StateGenerating, false, nil
	}
	return StateDone, false, nil
}

func (m *Machine) countEscalation(reason string) {
	if m.deps.Progress != nil {
		m.deps.Progress.IncEscalation(m.ws.ID, reason)
	}
}

// failingChecks names the tools that did not pass in the batch.
func failingChecks(outcomes []state.ValidationOutcome) []string {
	if len(outcomes) == 0 {
		return []string{"none recorded"}
	}
	var names []string
	for _, o := range outcomes {
		if !o.Passed {
			names = append(names, o.ToolName)
		}
	}
	if len(names) == 0 {
		return []string{"none"}
	}
	return names
}

// formatReport renders the recent outcomes for a reviewer.
func formatReport(outcomes []state.ValidationOutcome) string {
	var b strings.Builder
	for _, o := range outcomes {
		verdict := "PASS"
		if !o.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(&b, "%s: %s", o.ToolName, verdict)
		if o.ErrorMessage != "" {
			fmt.Fprintf(&b, " (%s)", o.ErrorMessage)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func rejectMessage(feedback string) string {
	if feedback == "" {
		return "change rejected by reviewer"
	}
	return "change rejected by reviewer: " + feedback
}
