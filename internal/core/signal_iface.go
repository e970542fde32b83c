package core

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts the signaling transport of a session.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	// Frames delivers inbound payloads and is closed when the connection ends.
	Frames() <-chan Frame
	// Err reports why Frames was closed, nil after a local Close.
	Err() error
	Close()
}
