package dispatch

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

func TestHappyPath(t *testing.T) {
	state := contracts.ActionCreated
	for _, ev := range []contracts.ActionEvent{
		contracts.EventPush,
		contracts.EventAcknowledge,
		contracts.EventStartProcessing,
		contracts.EventResolve,
	} {
		next, ok := Next(state, ev)
		assert.True(t, ok, "event %s from %s", ev, state)
		state = next
	}
	assert.Equal(t, contracts.ActionResolved, state)
}

func TestIllegalTransitions(t *testing.T) {
	cases := []struct {
		state contracts.ActionState
		event contracts.ActionEvent
	}{
		{contracts.ActionCreated, contracts.EventAcknowledge},
		{contracts.ActionCreated, contracts.EventStartProcessing},
		{contracts.ActionPushed, contracts.EventStartProcessing},
		{contracts.ActionProcessing, contracts.EventAcknowledge},
		{contracts.ActionResolved, contracts.EventPush},
		{contracts.ActionResolved, contracts.EventResolve},
		{contracts.ActionClosed, contracts.EventEscalate},
	}
	for _, tc := range cases {
		_, ok := Next(tc.state, tc.event)
		assert.False(t, ok, "event %s from %s must be illegal", tc.event, tc.state)
	}
}

func TestAcknowledgeFromEscalated(t *testing.T) {
	next, ok := Next(contracts.ActionEscalated, contracts.EventAcknowledge)
	assert.True(t, ok)
	assert.Equal(t, contracts.ActionAcknowledged, next)
}

func TestFSMProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	allEvents := []contracts.ActionEvent{
		contracts.EventPush, contracts.EventAcknowledge, contracts.EventStartProcessing,
		contracts.EventResolve, contracts.EventEscalate, contracts.EventClose,
	}
	genEvents := gen.SliceOf(gen.IntRange(0, len(allEvents)-1))

	properties.Property("terminal states absorb every event", prop.ForAll(
		func(indexes []int) bool {
			state := contracts.ActionCreated
			for _, i := range indexes {
				next, ok := Next(state, allEvents[i])
				if !ok {
					continue
				}
				if state.Terminal() {
					// A terminal state accepted an event.
					return false
				}
				state = next
			}
			return true
		},
		genEvents,
	))

	properties.Property("every reachable state is a defined state", prop.ForAll(
		func(indexes []int) bool {
			known := map[contracts.ActionState]bool{
				contracts.ActionCreated: true, contracts.ActionPushed: true,
				contracts.ActionAcknowledged: true, contracts.ActionProcessing: true,
				contracts.ActionResolved: true, contracts.ActionEscalated: true,
				contracts.ActionClosed: true,
			}
			state := contracts.ActionCreated
			for _, i := range indexes {
				if next, ok := Next(state, allEvents[i]); ok {
					state = next
				}
				if !known[state] {
					return false
				}
			}
			return true
		},
		genEvents,
	))

	properties.TestingRun(t)
}
