package connect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_LegalPath(t *testing.T) {
	// The full happy path for a redirect-based provider
	path := []FlowState{
		StateCountrySelected,
		StateInstitutionSelected,
		StateAccountSelected,
		StateInitiating,
		StateAwaitingRedirect,
		StateActive,
	}

	state := StateProviderSelected
	for _, next := range path {
		got, err := Transition(state, next)
		require.NoError(t, err, "%s -> %s should be legal", state, next)
		state = got
	}
	assert.Equal(t, StateActive, state)
}

func TestTransition_LinkBranch(t *testing.T) {
	state, err := Transition(StateInitiating, StateLinkPending)
	require.NoError(t, err)
	assert.Equal(t, StateLinkPending, state)

	state, err = Transition(state, StateActive)
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)
}

func TestTransition_InitiateFailureReturnsToAccountSelected(t *testing.T) {
	state, err := Transition(StateInitiating, StateAccountSelected)
	require.NoError(t, err)
	assert.Equal(t, StateAccountSelected, state)
}

func TestTransition_Illegal(t *testing.T) {
	cases := []struct{ from, to FlowState }{
		{StateProviderSelected, StateAccountSelected}, // skipping steps
		{StateCountrySelected, StateInitiating},
		{StateAccountSelected, StateActive},
		{StateAwaitingRedirect, StateLinkPending}, // crossing branches
		{StateActive, StateInitiating},            // terminal
		{StateError, StateInitiating},             // terminal
	}

	for _, tc := range cases {
		got, err := Transition(tc.from, tc.to)
		require.Error(t, err, "%s -> %s should be illegal", tc.from, tc.to)

		var illegalErr *IllegalTransitionError
		require.ErrorAs(t, err, &illegalErr)
		assert.Equal(t, tc.from, illegalErr.From)
		assert.Equal(t, tc.to, illegalErr.To)
		// State is unchanged on a rejected transition
		assert.Equal(t, tc.from, got)
	}
}
