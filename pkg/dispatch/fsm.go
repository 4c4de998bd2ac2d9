// Package dispatch drives remediation actions through an explicit state
// machine and escalates the ones nobody picks up in time.
package dispatch

import "github.com/Storemind-AI/trustcore/pkg/contracts"

// transitions is the complete lifecycle table. An event missing from a
// state's row is illegal from that state; there is no other transition
// logic anywhere.
var transitions = map[contracts.ActionState]map[contracts.ActionEvent]contracts.ActionState{
	contracts.ActionCreated: {
		contracts.EventPush:     contracts.ActionPushed,
		contracts.EventResolve:  contracts.ActionResolved,
		contracts.EventEscalate: contracts.ActionEscalated,
		contracts.EventClose:    contracts.ActionClosed,
	},
	contracts.ActionPushed: {
		contracts.EventAcknowledge: contracts.ActionAcknowledged,
		contracts.EventResolve:     contracts.ActionResolved,
		contracts.EventEscalate:    contracts.ActionEscalated,
		contracts.EventClose:       contracts.ActionClosed,
	},
	contracts.ActionAcknowledged: {
		contracts.EventStartProcessing: contracts.ActionProcessing,
		contracts.EventResolve:         contracts.ActionResolved,
		contracts.EventEscalate:        contracts.ActionEscalated,
		contracts.EventClose:           contracts.ActionClosed,
	},
	contracts.ActionProcessing: {
		contracts.EventResolve:  contracts.ActionResolved,
		contracts.EventEscalate: contracts.ActionEscalated,
		contracts.EventClose:    contracts.ActionClosed,
	},
	contracts.ActionEscalated: {
		contracts.EventAcknowledge: contracts.ActionAcknowledged,
		contracts.EventResolve:     contracts.ActionResolved,
		contracts.EventEscalate:    contracts.ActionEscalated,
		contracts.EventClose:       contracts.ActionClosed,
	},
}

// Next returns the state reached by firing event from state. ok is false
// for illegal transitions, including any event on a terminal state.
func Next(state contracts.ActionState, event contracts.ActionEvent) (contracts.ActionState, bool) {
	row, ok := transitions[state]
	if !ok {
		return state, false
	}
	next, ok := row[event]
	return next, ok
}
