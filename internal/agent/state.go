// ABOUTME: Agent lifecycle states, triggers, and the transition table
// ABOUTME: Every state change goes through this table

package agent

import "time"

// State is an agent's connection lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// States lists every state, in lifecycle order.
var States = []State{StateIdle, StateConnecting, StateConnected, StateDisconnected, StateError}

// trigger is an input to the state machine.
type trigger string

const (
	trigConnect    trigger = "connect"
	trigLogin      trigger = "login"
	trigEnd        trigger = "end"
	trigError      trigger = "error"
	trigKicked     trigger = "kicked"
	trigTimeout    trigger = "timeout"
	trigDisconnect trigger = "disconnect"
)

// transitions maps trigger x current state to the next state. Pairs that are
// absent are ignored.
//
// A connection that ends before login counts as a failure. Disconnect from
// error is absent so the error is preserved.
var transitions = map[trigger]map[State]State{
	trigConnect: {
		StateIdle:         StateConnecting,
		StateDisconnected: StateConnecting,
		StateError:        StateConnecting,
	},
	trigLogin: {
		StateConnecting: StateConnected,
	},
	trigEnd: {
		StateConnecting: StateError,
		StateConnected:  StateDisconnected,
	},
	trigError: {
		StateConnecting: StateError,
		StateConnected:  StateError,
	},
	trigKicked: {
		StateConnecting: StateError,
		StateConnected:  StateError,
	},
	trigTimeout: {
		StateConnecting: StateError,
	},
	trigDisconnect: {
		StateConnecting: StateDisconnected,
		StateConnected:  StateDisconnected,
	},
}

// next returns the state trig leads to from s.
func next(s State, trig trigger) (State, bool) {
	to, ok := transitions[trig][s]
	return to, ok
}

// Transition describes one applied state change.
type Transition struct {
	AgentID string    `json:"agentId"`
	OwnerID string    `json:"ownerId"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}
