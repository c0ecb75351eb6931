package conn

// State describes where the connection is in its lifecycle.
//
// The normal progression is Idle → Connecting → Connected. On transport
// loss the manager moves through Disconnected (peer closed) or Errored
// (transport failure) into Reconnecting, then back to Connecting.
// Terminated is reached when the retry budget is exhausted or on an
// explicit Disconnect, and is left only by a manual Connect call.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateErrored
	StateReconnecting
	StateTerminated
)

// String returns the user-facing status vocabulary.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateErrored:
		return "errored"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
