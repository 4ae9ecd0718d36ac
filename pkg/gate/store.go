package gate

import (
	"context"
	"fmt"
	"sync"

	"recast/pkg/logx"
)

// StoreReviewer parks review requests until a decision is posted through
// the resume endpoint. One pending review per workflow; the workflow stays
// suspended in AWAITING_REVIEW for as long as the request is parked.
type StoreReviewer struct {
	mu      sync.Mutex
	pending map[string]*pendingReview
	log     *logx.Logger
}

type pendingReview struct {
	req ReviewRequest
	ch  chan ReviewDecision
}

func NewStoreReviewer() *StoreReviewer {
	return &StoreReviewer{
		pending: make(map[string]*pendingReview),
		log:     logx.NewLogger("gate"),
	}
}

func (s *StoreReviewer) AwaitReview(ctx context.Context, req ReviewRequest) (ReviewDecision, error) {
	p := &pendingReview{req: req, ch: make(chan ReviewDecision, 1)}

	s.mu.Lock()
	if _, exists := s.pending[req.WorkflowID]; exists {
		s.mu.Unlock()
		return ReviewDecision{}, fmt.Errorf("workflow %s already has a pending review", req.WorkflowID)
	}
	s.pending[req.WorkflowID] = p
	s.mu.Unlock()

	s.log.Info("workflow %s suspended for review of %s", req.WorkflowID, req.FilePath)

	defer func() {
		s.mu.Lock()
		if current, ok := s.pending[req.WorkflowID]; ok && current == p {
			delete(s.pending, req.WorkflowID)
		}
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ReviewDecision{}, ctx.Err()
	case decision := <-p.ch:
		return decision, nil
	}
}

// Resolve delivers a decision to a suspended workflow. It fails when no
// review is pending or the action is invalid.
func (s *StoreReviewer) Resolve(workflowID string, decision ReviewDecision) error {
	if !decision.Action.Valid() {
		return fmt.Errorf("invalid review action %q", decision.Action)
	}
	if decision.Action == ActionModify && decision.Feedback == "" {
		return fmt.Errorf("modify requires feedback")
	}

	s.mu.Lock()
	p, ok := s.pending[workflowID]
	if ok {
		delete(s.pending, workflowID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("workflow %s has no pending review", workflowID)
	}
	p.ch <- decision
	s.log.Info("workflow %s review resolved: %s", workflowID, decision.Action)
	return nil
}

// Pending returns the parked request for a workflow, if any.
func (s *StoreReviewer) Pending(workflowID string) (ReviewRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[workflowID]
	if !ok {
		return ReviewRequest{}, false
	}
	return p.req, true
}
