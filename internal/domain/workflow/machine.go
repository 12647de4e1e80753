package workflow

import (
	"context"
	"time"
)

// Transition records one state change applied by a machine
type Transition struct {
	From    State
	To      State
	Trigger Trigger
	At      time.Time
}

// StateMachine tracks the current state of one run and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger

	// History returns the transitions applied so far, oldest first
	History() []Transition
}

// NewClaimMachine builds the pipeline state machine starting at RECEIVED.
// Stages advance strictly in order and FAIL is accepted from every
// non-terminal state.
func NewClaimMachine() StateMachine {
	b := NewBuilder()

	b.Configure(StateReceived).
		Permit(TriggerTextExtracted, StateTextExtracted).
		Permit(TriggerFail, StateFailed)

	b.Configure(StateTextExtracted).
		Permit(TriggerStructured, StateStructured).
		Permit(TriggerFail, StateFailed)

	b.Configure(StateStructured).
		Permit(TriggerValidated, StateValidated).
		Permit(TriggerFail, StateFailed)

	b.Configure(StateValidated).
		Permit(TriggerRouted, StateRouted).
		Permit(TriggerFail, StateFailed)

	return b.Build(StateReceived)
}
