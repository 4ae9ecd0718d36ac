// Package loop implements the refactoring workflow's state machine: the
// per-file generate → validate → reflect → regenerate cycle, the routing
// decision after validation, oscillation detection, and advancement through
// the dependency-ordered file queue. The Machine is the only writer to the
// WorkflowState aggregate; collaborators get read views and hand back
// results it merges explicitly.
package loop

import "recast/pkg/agent"

// Workflow states.
const (
	// StateAnalyzing orders the files and identifies targets.
	StateAnalyzing agent.State = "ANALYZING"
	// StateGenerating produces a candidate rewrite for the current file.
	StateGenerating agent.State = "GENERATING"
	// StateValidating runs the check pipeline over the candidate.
	StateValidating agent.State = "VALIDATING"
	// StateReflecting digests failures into guidance for the next attempt.
	StateReflecting agent.State = "REFLECTING"
	// StateAwaitingReview suspends the workflow at the human gate.
	StateAwaitingReview agent.State = "AWAITING_REVIEW"
	// StateSuccess finalizes the current file as COMPLETED.
	StateSuccess agent.State = "SUCCESS"
	// StateEscalating finalizes the current file as FAILED.
	StateEscalating agent.State = "ESCALATING"
	// StateDone is the workflow's terminal state.
	StateDone agent.State = "DONE"
)

// Transitions is the canonical transition table. SUCCESS and ESCALATING are
// terminal per file, not per workflow: both re-enter GENERATING while queued
// files remain.
var Transitions = agent.TransitionTable{
	StateAnalyzing:  {StateGenerating, StateDone},
	StateGenerating: {StateValidating, StateEscalating},
	StateValidating: {StateSuccess, StateReflecting, StateEscalating, StateAwaitingReview},
	StateReflecting: {StateGenerating},
	StateAwaitingReview: {
		StateSuccess, StateEscalating, StateGenerating,
	},
	StateSuccess:    {StateGenerating, StateDone},
	StateEscalating: {StateGenerating, StateDone},
	StateDone:       {},
}

// IsValidTransition checks the canonical table.
func IsValidTransition(from, to agent.State) bool {
	for _, allowed := range Transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidStates returns every state in the table.
func ValidStates() []agent.State {
	return []agent.State{
		StateAnalyzing,
		StateGenerating,
		StateValidating,
		StateReflecting,
		StateAwaitingReview,
		StateSuccess,
		StateEscalating,
		StateDone,
	}
}

// IsTerminal reports whether the workflow is finished in this state.
func IsTerminal(s agent.State) bool {
	return s == StateDone
}
