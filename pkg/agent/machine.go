// Package agent provides the generic state machine underpinning a workflow:
// a typed current state, an explicit transition table, a transition history,
// and a driver loop that advances the machine until it reports done.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"recast/pkg/logx"
)

// State identifies a machine state.
type State string

func (s State) String() string {
	return string(s)
}

// ErrInvalidTransition is returned when a transition is not in the table.
var ErrInvalidTransition = errors.New("invalid state transition")

// Transition records one state change.
type Transition struct {
	From      State          `json:"from"`
	To        State          `json:"to"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TransitionTable lists the legal next states per state.
type TransitionTable map[State][]State

// StateMachine is implemented by concrete workflow machines.
type StateMachine interface {
	// GetCurrentState returns the current state.
	GetCurrentState() State

	// ProcessState handles the logic for the current state.
	// Returns the next state and whether processing is complete.
	ProcessState(ctx context.Context) (next State, done bool, err error)

	// TransitionTo moves to a new state.
	TransitionTo(ctx context.Context, newState State, metadata map[string]any) error

	// Persist saves the machine's state to durable storage.
	Persist(ctx context.Context) error
}

// Persister is called after every transition with the machine's ID and the
// state just entered. Implementations snapshot whatever the concrete machine
// owns.
type Persister func(ctx context.Context, id string, entered State) error

// BaseMachine provides transition validation, history, and notification for
// concrete machines to embed. The embedding machine owns its own typed state;
// BaseMachine deliberately holds none.
type BaseMachine struct {
	id      string
	current State
	table   TransitionTable
	history []Transition
	mu      sync.Mutex
	logger  *logx.Logger

	persist Persister
	notifCh chan<- Transition
}

// NewBaseMachine creates a machine at the initial state with the given table.
func NewBaseMachine(id string, initial State, table TransitionTable) *BaseMachine {
	return &BaseMachine{
		id:      id,
		current: initial,
		table:   table,
		history: make([]Transition, 0),
		logger:  logx.NewLogger(id),
	}
}

// SetPersister installs the post-transition persistence hook.
func (m *BaseMachine) SetPersister(p Persister) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persist = p
}

// SetNotificationChannel installs a channel receiving each transition.
// Sends never block; a full channel drops the notification.
func (m *BaseMachine) SetNotificationChannel(ch chan<- Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifCh = ch
}

// GetCurrentState returns the current state.
func (m *BaseMachine) GetCurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ID returns the machine's identifier.
func (m *BaseMachine) ID() string {
	return m.id
}

// Logger returns the machine's logger.
func (m *BaseMachine) Logger() *logx.Logger {
	return m.logger
}

// IsValidTransition checks the table without changing state.
func (m *BaseMachine) IsValidTransition(from, to State) bool {
	for _, allowed := range m.table[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ForceState sets the current state without table validation. Only for
// restoring a persisted machine.
func (m *BaseMachine) ForceState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}

// TransitionTo validates and applies a state change, records it, notifies,
// and persists.
func (m *BaseMachine) TransitionTo(ctx context.Context, newState State, metadata map[string]any) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("state transition cancelled: %w", ctx.Err())
	default:
	}

	m.mu.Lock()

	oldState := m.current
	if !m.IsValidTransition(oldState, newState) {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, oldState, newState)
	}

	transition := Transition{
		From:      oldState,
		To:        newState,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	m.history = append(m.history, transition)
	m.current = newState

	m.logger.Info("state machine transition: %s -> %s", oldState, newState)

	if m.notifCh != nil {
		select {
		case m.notifCh <- transition:
		default:
			m.logger.Warn("notification channel full, dropping %s -> %s", oldState, newState)
		}
	}

	persist := m.persist
	m.mu.Unlock()

	if persist != nil {
		if err := persist(ctx, m.id, newState); err != nil {
			return fmt.Errorf("failed to persist state transition: %w", err)
		}
	}
	return nil
}

// GetTransitions returns a copy of the transition history.
func (m *BaseMachine) GetTransitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition{}, m.history...)
}

// CompactIfNeeded bounds the transition history.
func (m *BaseMachine) CompactIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	const maxTransitions = 100
	if len(m.history) > maxTransitions {
		m.history = m.history[len(m.history)-maxTransitions:]
	}
}
