package workflow

import (
	"context"
	"fmt"
	"time"
)

// GuardFunc evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions out of one state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type transitionTable map[State]map[Trigger][]transition

type stateConfig struct {
	table     transitionTable
	fromState State
}

type stateMachineBuilder struct {
	table transitionTable
}

type stateMachine struct {
	current State
	table   transitionTable
	history []Transition
	now     func() time.Time
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{table: make(transitionTable)}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.table[state]; !ok {
		b.table[state] = make(map[Trigger][]transition)
	}
	return &stateConfig{table: b.table, fromState: state}
}

// Build copies the transition table so machines built from the same
// builder never share state.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	table := make(transitionTable, len(b.table))
	for state, triggers := range b.table {
		copied := make(map[Trigger][]transition, len(triggers))
		for trigger, ts := range triggers {
			copied[trigger] = append([]transition(nil), ts...)
		}
		table[state] = copied
	}

	return &stateMachine{
		current: initialState,
		table:   table,
		now:     time.Now,
	}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.table[c.fromState][trigger] = append(c.table[c.fromState][trigger], transition{
		toState: toState,
		guard:   guard,
	})
	return c
}

func (m *stateMachine) State() State {
	return m.current
}

// CanFire reports whether any transition exists for the trigger. Guards are
// not evaluated since they need a context.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.table[m.current][trigger]) > 0
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	triggers, ok := m.table[m.current]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s (no configuration)", ErrInvalidTransition, trigger, m.current)
	}

	candidates := triggers[trigger]
	if len(candidates) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range candidates {
		if t.guard != nil && !t.guard(ctx) {
			continue
		}
		m.history = append(m.history, Transition{
			From:    m.current,
			To:      t.toState,
			Trigger: trigger,
			At:      m.now().UTC(),
		})
		m.current = t.toState
		return nil
	}

	return fmt.Errorf("%w: trigger %s from %s", ErrGuardFailed, trigger, m.current)
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.table[m.current]))
	for trigger, ts := range m.table[m.current] {
		if len(ts) > 0 {
			triggers = append(triggers, trigger)
		}
	}
	return triggers
}

func (m *stateMachine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
