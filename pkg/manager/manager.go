// Package manager runs concurrent workflows: each gets its own driver
// goroutine and WorkflowState aggregate; they share nothing mutable. The
// manager is the host-side owner of start, status, resume, and cancel.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"recast/pkg/agent"
	"recast/pkg/config"
	"recast/pkg/gate"
	"recast/pkg/logx"
	"recast/pkg/loop"
	"recast/pkg/persistence"
	"recast/pkg/state"
)

// ErrUnknownWorkflow is returned for IDs the manager has never seen.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// MachineBuilder constructs the loop machine for one workflow. The manager
// owns wiring the collaborators; tests substitute a builder with fakes.
type MachineBuilder func(ws *state.WorkflowState) (*loop.Machine, error)

// ResumeBuilder reconstructs a machine from a persisted snapshot.
type ResumeBuilder func(snapshot []byte, step int) (*loop.Machine, error)

// Options configures a Manager.
type Options struct {
	Config config.Config
	// Store persists summaries and checkpoints. Nil disables persistence
	// (tests, one-shot CLI runs without a database).
	Store *persistence.Store
	// Reviewer receives resume decisions in api gate mode.
	Reviewer *gate.StoreReviewer
	// Build creates the machine for a fresh workflow.
	Build MachineBuilder
	// Rebuild creates a machine from a checkpoint snapshot.
	Rebuild ResumeBuilder
}

type running struct {
	machine *loop.Machine
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Manager tracks every workflow it has started this process.
type Manager struct {
	opts Options
	log  *logx.Logger

	mu        sync.Mutex
	workflows map[string]*running
}

// New creates a manager.
func New(opts Options) *Manager {
	return &Manager{
		opts:      opts,
		log:       logx.NewLogger("manager"),
		workflows: make(map[string]*running),
	}
}

// Start validates the input, creates the workflow, and launches its driver
// goroutine. Input errors are reported synchronously and never enter the
// loop.
func (m *Manager) Start(goal string, files []state.FileInput, maxIterations int) (string, error) {
	if strings.TrimSpace(goal) == "" {
		return "", errors.New("refactoring goal must not be empty")
	}
	if len(files) == 0 {
		return "", errors.New("no files supplied")
	}
	if maxIterations < 1 {
		maxIterations = m.opts.Config.MaxIterations
	}

	ws := state.NewWorkflow(goal, files, maxIterations)
	if m.opts.Store != nil {
		if err := m.opts.Store.Ping(context.Background()); err != nil {
			return "", fmt.Errorf("persistence unavailable: %w", err)
		}
		if err := m.opts.Store.SaveWorkflow(context.Background(), ws); err != nil {
			return "", err
		}
	}

	machine, err := m.opts.Build(ws)
	if err != nil {
		return "", fmt.Errorf("failed to build workflow machine: %w", err)
	}
	m.launch(machine)
	return ws.ID, nil
}

// ResumeFromCheckpoint restores a suspended or interrupted workflow from its
// latest persisted snapshot and relaunches its driver.
func (m *Manager) ResumeFromCheckpoint(ctx context.Context, workflowID string) error {
	if m.opts.Store == nil {
		return errors.New("no persistence store configured")
	}
	m.mu.Lock()
	if _, active := m.workflows[workflowID]; active {
		m.mu.Unlock()
		return fmt.Errorf("workflow %s is already running", workflowID)
	}
	m.mu.Unlock()

	cp, err := m.opts.Store.LoadLatest(ctx, workflowID)
	if err != nil {
		return err
	}
	machine, err := m.opts.Rebuild(cp.Snapshot, cp.Step)
	if err != nil {
		return err
	}
	m.launch(machine)
	return nil
}

// launch runs the machine's driver in its own goroutine. The run context is
// independent of any request context: a workflow outlives the call that
// started it.
func (m *Manager) launch(machine *loop.Machine) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{machine: machine, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.workflows[machine.WorkflowID()] = r
	m.mu.Unlock()

	go func() {
		defer close(r.done)
		defer cancel()

		err := agent.NewDriver(machine).Run(ctx)
		r.err = err

		ws := machine.State()
		if err != nil && !ws.Cancelled && ws.TerminalError == "" {
			ws.SetTerminalError(err.Error())
		}
		if err != nil {
			ws.SkipRemaining("workflow stopped before this file was processed")
		}
		machine.PublishSummary()
		if m.opts.Store != nil {
			if serr := m.opts.Store.SaveWorkflow(context.Background(), ws); serr != nil {
				m.log.Error("failed to record final state for %s: %v", ws.ID, serr)
			}
		}
		if err != nil {
			m.log.Warn("workflow %s stopped: %v", ws.ID, err)
		} else {
			m.log.Info("workflow %s finished", ws.ID)
		}
	}()
}

// Status returns the latest summary the workflow's machine published. The
// driver goroutine owns the aggregate, so status never reads it directly.
func (m *Manager) Status(workflowID string) (state.Summary, error) {
	m.mu.Lock()
	r, ok := m.workflows[workflowID]
	m.mu.Unlock()
	if !ok {
		return state.Summary{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	return r.machine.Summary(), nil
}

// List summarizes every workflow started this process.
func (m *Manager) List() []state.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]state.Summary, 0, len(m.workflows))
	for _, r := range m.workflows {
		list = append(list, r.machine.Summary())
	}
	return list
}

// Resume delivers a human-gate decision to a workflow suspended in
// AWAITING_REVIEW.
func (m *Manager) Resume(workflowID, action, feedback string) error {
	if m.opts.Reviewer == nil {
		return errors.New("human gate is not in api mode")
	}
	parsed, err := gate.ParseAction(action)
	if err != nil {
		return err
	}
	if parsed == gate.ActionModify && strings.TrimSpace(feedback) == "" {
		return errors.New("modify requires feedback")
	}
	return m.opts.Reviewer.Resolve(workflowID, gate.ReviewDecision{Action: parsed, Feedback: feedback})
}

// Cancel stops a running workflow. Safe against a workflow suspended at the
// gate: cancellation propagates through the reviewer's context.
func (m *Manager) Cancel(workflowID string) error {
	m.mu.Lock()
	r, ok := m.workflows[workflowID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	r.cancel()
	return nil
}

// Wait blocks until the workflow's driver goroutine exits and returns its
// error, if any.
func (m *Manager) Wait(workflowID string) error {
	m.mu.Lock()
	r, ok := m.workflows[workflowID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	<-r.done
	return r.err
}
