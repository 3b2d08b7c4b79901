package livefeed

// ConnectionState represents the current state of the event connection.
type ConnectionState int

const (
	// StateDisconnected means the client has not connected yet.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the client is dialing and requesting backfill.
	StateConnecting

	// StateConnected means live updates are flowing.
	StateConnected

	// StateStale means the connection failed; the feed is no longer updated until
	// the caller connects again.
	StateStale

	// StateClosed means the client has been explicitly closed by the user.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStale:
		return "stale"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change event.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // Optional error that caused the state change
}
