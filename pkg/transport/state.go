package transport

// State is the logical connection state of a [Manager]. Exactly one value is
// authoritative per Manager at any time; it changes only through the
// transitions the Manager itself performs.
type State int

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateConnected means the socket is open and usable.
	StateConnected

	// StateReconnecting means a reconnect attempt is scheduled after a backoff
	// delay.
	StateReconnecting

	// StateClosing means a deliberate disconnect is in progress.
	StateClosing

	// StateError means the last connection attempt or the connection itself
	// failed.
	StateError
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
