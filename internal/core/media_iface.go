package core

import (
	"context"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

// CaptureConstraints mirror what the front-end asks of a capture device.
type CaptureConstraints struct {
	Width            int
	Height           int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints returns the constraints used when enabling source.
func DefaultConstraints(source domain.TrackSource) CaptureConstraints {
	if source == domain.SourceCamera {
		return CaptureConstraints{Width: 1280, Height: 720}
	}
	return CaptureConstraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// SampleSource yields encoded media samples until Close or io.EOF.
type SampleSource interface {
	// MimeType is the codec of the samples, e.g. webrtc.MimeTypeOpus.
	MimeType() string
	ReadSample() (media.Sample, error)
	Close() error
}

// Capturer opens local capture devices. Failures are reported as *DeviceError.
type Capturer interface {
	Open(ctx context.Context, source domain.TrackSource, c CaptureConstraints) (SampleSource, error)
}
