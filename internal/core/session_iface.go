package core

import (
	"context"
	"time"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

// VideoLayer is one simulcast layer requested from the media server.
type VideoLayer struct {
	Name         string `json:"name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	MaxBitrate   int    `json:"max_bitrate"`
	MaxFramerate int    `json:"max_framerate"`
}

// PublishOptions are passed through to the media server untouched.
type PublishOptions struct {
	AdaptiveStream bool         `json:"adaptive_stream"`
	Dynacast       bool         `json:"dynacast"`
	Simulcast      bool         `json:"simulcast"`
	VideoLayers    []VideoLayer `json:"video_layers,omitempty"`
}

// ConnectOptions configures one Transport.Connect call.
type ConnectOptions struct {
	Identity      domain.Identity
	Room          domain.RoomName
	AutoSubscribe bool
	Publish       PublishOptions
}

// DataMessage is one message received on the data channel.
type DataMessage struct {
	Topic         string
	Payload       []byte
	ParticipantID domain.Identity
}

// TransportEvents receives transport notifications. Callbacks may run on any goroutine,
// but a transport never calls two of them concurrently and keeps their order.
type TransportEvents struct {
	OnPhase  func(domain.ConnectionPhase)
	OnTracks func([]domain.TrackRef)
	OnData   func(DataMessage)
}

// Transport is the real-time engine a session runs on. It is consumed, never reimplemented.
type Transport interface {
	// Connect joins the room at url using credential. It returns once media is flowing or fails.
	Connect(ctx context.Context, url, credential string, opts ConnectOptions) error
	// Disconnect leaves the room and releases local capture. Safe to call repeatedly.
	Disconnect() error
	// SetTrackEnabled publishes or unpublishes the local camera or microphone.
	SetTrackEnabled(ctx context.Context, source domain.TrackSource, enabled bool) error
	// Subscribe installs the event callbacks; the returned func removes them.
	Subscribe(TransportEvents) (unsubscribe func())
}

// TrackStats counts what arrived on a remote track.
type TrackStats struct {
	Packets    uint64
	Bytes      uint64
	LastPacket time.Time
}

// StatsReporter is implemented by media handles that expose receive statistics.
type StatsReporter interface {
	Stats() TrackStats
}
