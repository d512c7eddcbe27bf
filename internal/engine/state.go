package engine

// State is the lifecycle state of a playback target, in ascending order of
// readiness. The numeric values are part of the control surface and must not
// be reordered.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Diagnostics is a point-in-time snapshot of engine health. Reading it never
// blocks on session teardown.
type Diagnostics struct {
	State         State
	ActiveTarget  string
	ActiveZombies int
	// StopTaskHanging is true when some detached teardown has been draining
	// for longer than the zombie grace period.
	StopTaskHanging bool
}

// StateCallback receives lifecycle transitions of the active session.
type StateCallback func(State)

// SettingsCallback receives volume and latency pushed by the server.
type SettingsCallback func(volume int, muted bool, latencyMs int)
