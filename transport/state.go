// File: transport/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

// State is the connection lifecycle position. Transitions are strictly
// monotonic: a socket never re-enters an earlier state, and in particular
// never returns to Unconnected or Connecting once Connected.
type State int32

const (
	StateUnconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Direction selects which side of a connection Shutdown closes.
type Direction int

const (
	ShutRead Direction = 1 << iota
	ShutWrite
	ShutBoth = ShutRead | ShutWrite
)
