package collector

// State is the collector's connection state.
type State int

const (
	// StateDisconnected is the initial state, also entered on auth, host
	// key, or configuration failures.
	StateDisconnected State = iota
	// StateConnecting means a connection attempt is in progress.
	StateConnecting
	// StateConnected means the last poll succeeded.
	StateConnected
	// StateRetrying means the last poll failed transiently; the last good
	// snapshot is still published.
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	default:
		return "disconnected"
	}
}
