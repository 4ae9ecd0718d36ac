// Package gate implements the human review checkpoint: a Reviewer blocks
// the workflow in AWAITING_REVIEW until a decision arrives. The loop applies
// the decision; reviewers only collect it.
package gate

import (
	"context"
	"fmt"
	"strings"
)

// ReviewAction is the reviewer's verdict kind.
type ReviewAction string

const (
	// ActionApprove accepts the candidate; the file completes.
	ActionApprove ReviewAction = "APPROVE"
	// ActionReject discards the candidate; the file fails without
	// consuming an attempt.
	ActionReject ReviewAction = "REJECT"
	// ActionModify sends feedback into the next generation attempt,
	// consuming one iteration.
	ActionModify ReviewAction = "MODIFY"
)

// Valid reports whether the action is one the loop understands.
func (a ReviewAction) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionModify:
		return true
	}
	return false
}

// ParseAction normalizes user-supplied action text.
func ParseAction(s string) (ReviewAction, error) {
	action := ReviewAction(strings.ToUpper(strings.TrimSpace(s)))
	if !action.Valid() {
		return "", fmt.Errorf("unknown review action %q (want approve, reject, or modify)", s)
	}
	return action, nil
}

// ReviewRequest is everything a reviewer sees for one candidate.
type ReviewRequest struct {
	WorkflowID       string
	FilePath         string
	Goal             string
	Summary          string
	Diff             string
	ValidationReport string
	Iteration        int
	MaxIterations    int
}

// ReviewDecision is the reviewer's answer. Feedback is required for MODIFY
// and optional otherwise.
type ReviewDecision struct {
	Action   ReviewAction `json:"action"`
	Feedback string       `json:"feedback,omitempty"`
}

// Reviewer collects a decision for a candidate. AwaitReview blocks until a
// decision arrives or ctx is done; the workflow suspends for the duration.
type Reviewer interface {
	AwaitReview(ctx context.Context, req ReviewRequest) (ReviewDecision, error)
}

// AutoApprover approves everything. It stands in for the gate when review
// is disabled.
type AutoApprover struct{}

func (AutoApprover) AwaitReview(ctx context.Context, _ ReviewRequest) (ReviewDecision, error) {
	if err := ctx.Err(); err != nil {
		return ReviewDecision{}, err
	}
	return ReviewDecision{Action: ActionApprove, Feedback: "auto-approved"}, nil
}
