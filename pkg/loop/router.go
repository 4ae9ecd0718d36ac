package loop

import "recast/pkg/state"

// Decision is the routing verdict after a validation pass.
type Decision string

const (
	// DecisionSuccess means every recent outcome passed.
	DecisionSuccess Decision = "success"
	// DecisionReflect means validation failed and retry budget remains.
	DecisionReflect Decision = "reflect"
	// DecisionEscalate means validation failed with the budget exhausted.
	DecisionEscalate Decision = "escalate"
)

// Valid reports whether d is a routing verdict the machine understands.
func (d Decision) Valid() bool {
	switch d {
	case DecisionSuccess, DecisionReflect, DecisionEscalate:
		return true
	}
	return false
}

// recentWindow caps how much validation history the router inspects.
const recentWindow = 5

// Route decides the next edge from the most recent validation outcomes.
// The batch must already be filtered to real records (the aggregate's
// RecentValidations does this). An empty batch is never a success: a
// validation pass that recorded nothing cannot vouch for the candidate.
func Route(recent []state.ValidationOutcome, iteration, maxIterations int) Decision {
	if len(recent) > 0 && allPassed(recent) {
		return DecisionSuccess
	}
	if iteration < maxIterations {
		return DecisionReflect
	}
	return DecisionEscalate
}

func allPassed(outcomes []state.ValidationOutcome) bool {
	for _, o := range outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}
