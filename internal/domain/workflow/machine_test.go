package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateReceived, false},
		{StateTextExtracted, false},
		{StateStructured, false},
		{StateValidated, false},
		{StateRouted, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsTerminal())
		})
	}
}

func TestState_IsValid(t *testing.T) {
	assert.True(t, StateReceived.IsValid())
	assert.True(t, StateFailed.IsValid())
	assert.False(t, State("INVALID").IsValid())
	assert.False(t, State("").IsValid())
}

func TestBuilder_PanicsOnInvalidStates(t *testing.T) {
	assert.Panics(t, func() { NewBuilder().Configure(State("INVALID")) })
	assert.Panics(t, func() { NewBuilder().Build(State("INVALID")) })
	assert.Panics(t, func() {
		NewBuilder().Configure(StateReceived).Permit(TriggerFail, State("INVALID"))
	})
}

func TestStateConfiguration_PermitIf(t *testing.T) {
	b := NewBuilder()
	b.Configure(StateReceived).
		PermitIf(TriggerTextExtracted, StateTextExtracted, func(ctx context.Context) bool {
			return ctx.Value(ctxKey("ok")) == true
		}).
		Permit(TriggerFail, StateFailed)

	blocked := b.Build(StateReceived)
	err := blocked.Fire(context.Background(), TriggerTextExtracted)
	assert.ErrorIs(t, err, ErrGuardFailed)
	assert.Equal(t, StateReceived, blocked.State())
	assert.Empty(t, blocked.History())

	allowed := b.Build(StateReceived)
	ctx := context.WithValue(context.Background(), ctxKey("ok"), true)
	require.NoError(t, allowed.Fire(ctx, TriggerTextExtracted))
	assert.Equal(t, StateTextExtracted, allowed.State())
}

func TestStateMachine_Fire_NoConfiguration(t *testing.T) {
	m := NewBuilder().Build(StateRouted)

	err := m.Fire(context.Background(), TriggerFail)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, m.PermittedTriggers())
}

func TestClaimMachine_HappyPath(t *testing.T) {
	m := NewClaimMachine()
	ctx := context.Background()

	steps := []struct {
		trigger Trigger
		want    State
	}{
		{TriggerTextExtracted, StateTextExtracted},
		{TriggerStructured, StateStructured},
		{TriggerValidated, StateValidated},
		{TriggerRouted, StateRouted},
	}

	for _, step := range steps {
		require.NoError(t, m.Fire(ctx, step.trigger), "firing %s", step.trigger)
		assert.Equal(t, step.want, m.State())
	}

	assert.True(t, m.State().IsTerminal())
	assert.Empty(t, m.PermittedTriggers())

	history := m.History()
	require.Len(t, history, 4)
	assert.Equal(t, StateReceived, history[0].From)
	assert.Equal(t, StateRouted, history[3].To)
}

func TestClaimMachine_NoStageSkipped(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
	}{
		{"structured before extraction", TriggerStructured},
		{"validated before extraction", TriggerValidated},
		{"routed before extraction", TriggerRouted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewClaimMachine()
			err := m.Fire(context.Background(), tt.trigger)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, StateReceived, m.State())
		})
	}
}

func TestClaimMachine_FailReachableFromEveryNonTerminalState(t *testing.T) {
	advance := []Trigger{TriggerTextExtracted, TriggerStructured, TriggerValidated}

	for depth := 0; depth <= len(advance); depth++ {
		m := NewClaimMachine()
		for _, trig := range advance[:depth] {
			require.NoError(t, m.Fire(context.Background(), trig))
		}
		from := m.State()

		require.True(t, m.CanFire(TriggerFail), "FAIL must be permitted from %s", from)
		require.NoError(t, m.Fire(context.Background(), TriggerFail))
		assert.Equal(t, StateFailed, m.State())

		err := m.Fire(context.Background(), TriggerFail)
		assert.ErrorIs(t, err, ErrInvalidTransition, "FAILED must be terminal")
	}
}

func TestClaimMachine_Independent(t *testing.T) {
	m1 := NewClaimMachine()
	m2 := NewClaimMachine()

	require.NoError(t, m1.Fire(context.Background(), TriggerTextExtracted))

	assert.Equal(t, StateTextExtracted, m1.State())
	assert.Equal(t, StateReceived, m2.State())
}
