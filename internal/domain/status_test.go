package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionForward(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusSent, true},
		{StatusPending, StatusDelivered, true},
		{StatusPending, StatusRead, true},
		{StatusPending, StatusFailed, true},
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusBounced, true},
		{StatusDelivered, StatusRead, true},
		{StatusDelivered, StatusBounced, true},

		{StatusRead, StatusSent, false},
		{StatusRead, StatusDelivered, false},
		{StatusDelivered, StatusSent, false},
		{StatusSent, StatusPending, false},
		{StatusSent, StatusFailed, false},
		{StatusFailed, StatusSent, false},
		{StatusBounced, StatusRead, false},
		{StatusRead, StatusBounced, false},
		{StatusSent, StatusSent, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusRead.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusBounced.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusDelivered.Terminal())
}

func TestPredecessors(t *testing.T) {
	assert.ElementsMatch(t, []Status{StatusPending}, Predecessors(StatusSent))
	assert.ElementsMatch(t, []Status{StatusPending, StatusSent, StatusDelivered}, Predecessors(StatusRead))
	assert.ElementsMatch(t, []Status{StatusPending, StatusSent, StatusDelivered}, Predecessors(StatusBounced))
	assert.ElementsMatch(t, []Status{StatusPending}, Predecessors(StatusFailed))
	assert.Empty(t, Predecessors(StatusPending))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("delivered")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, st)

	_, err = ParseStatus("archived")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}
