package domain

// ConnectionPhase is the connection state of a session. Exactly one is active.
type ConnectionPhase int

const (
	PhaseDisconnected ConnectionPhase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseFailed
)

func (p ConnectionPhase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// DesiredInputState is what the user asked for. The core only reads it.
type DesiredInputState struct {
	CameraEnabled bool
	MicEnabled    bool
}
