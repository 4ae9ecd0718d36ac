package agent

import (
	"context"
	"fmt"
)

// Driver advances a state machine until it reports done.
type Driver struct {
	StateMachine
}

// NewDriver wraps a state machine in a run loop.
func NewDriver(sm StateMachine) *Driver {
	return &Driver{StateMachine: sm}
}

// Run executes the machine's main loop.
func (d *Driver) Run(ctx context.Context) error {
	for {
		done, err := d.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Step executes a single step: process the current state, then transition.
func (d *Driver) Step(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("driver step cancelled: %w", ctx.Err())
	default:
	}

	nextState, done, err := d.ProcessState(ctx)
	if err != nil {
		return false, err
	}
	if done {
		return true, nil
	}

	current := d.GetCurrentState()
	if nextState != current {
		if err := d.TransitionTo(ctx, nextState, nil); err != nil {
			return false, err
		}
	}
	return false, nil
}
