package state

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelmind/agentcore/internal/agenterrors"
)

// TestLegalTransitionChain validates spec scenario 1: idle -> planning ->
// mining -> (rejected) eating -> idle.
func TestLegalTransitionChain(t *testing.T) {
	m := New()

	require.NoError(t, m.Transition(Planning, "plan"))
	assert.Equal(t, Planning, m.CurrentState())

	require.NoError(t, m.Transition(Mining, "start mining"))
	assert.Equal(t, Mining, m.CurrentState())

	err := m.Transition(Eating, "hungry")
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.IllegalTransition))
	assert.Equal(t, Mining, m.CurrentState())

	require.NoError(t, m.Transition(Idle, "done"))
	assert.Equal(t, Idle, m.CurrentState())

	assert.Len(t, m.History(), 3)
}

func TestTransitionToSelfIsNoOp(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(Idle, ""))
	assert.Empty(t, m.History())
}

func TestTransitionToErrorAlwaysAccepted(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(Planning, "")) // a legal transition first
	_ = m.TransitionToError("fatal")
	assert.Equal(t, Error, m.CurrentState())
	assert.True(t, m.IsError())
}

func TestOnEnterFailureRevertsState(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	m.OnEnter(Planning, func(BotState) error { return boom })

	err := m.Transition(Planning, "plan")
	require.Error(t, err)
	assert.Equal(t, Idle, m.CurrentState())
}

func TestResetClearsHistoryAndState(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(Planning, ""))
	require.NoError(t, m.Transition(Mining, ""))
	m.Reset()
	assert.Equal(t, Idle, m.CurrentState())
	assert.Empty(t, m.History())
	assert.True(t, m.IsIdle())
}

func TestIsBusy(t *testing.T) {
	m := New()
	assert.False(t, m.IsBusy())
	require.NoError(t, m.Transition(Planning, ""))
	assert.False(t, m.IsBusy())
	require.NoError(t, m.Transition(Mining, ""))
	assert.True(t, m.IsBusy())
}

// TestHistoryBoundProperty validates I2: history length never exceeds 100
// and the most recent transition's To equals the current state.
func TestHistoryBoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	cycle := []BotState{Planning, Mining, Idle, Planning, Navigating, Idle}

	properties.Property("history stays bounded and tracks current state", prop.ForAll(
		func(repeats int) bool {
			m := New()
			for i := 0; i < repeats; i++ {
				_ = m.Transition(cycle[i%len(cycle)], "")
			}
			hist := m.History()
			if len(hist) > maxHistory {
				return false
			}
			if len(hist) == 0 {
				return true
			}
			return hist[len(hist)-1].To == m.CurrentState()
		},
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}
