// Package media provides capture sources for the local camera and microphone.
// There is no device access: the camera plays an IVF file, the microphone an Ogg/Opus
// file or synthetic silence.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

var errNoCamera = errors.New("no camera source configured")

// FileCapturer implements core.Capturer on top of media files.
type FileCapturer struct {
	CameraFile string
	// MicFile is optional; without it the microphone publishes silence.
	MicFile string
	// Loop restarts a file when it ends.
	Loop bool
}

func (c *FileCapturer) Open(ctx context.Context, source domain.TrackSource, cons core.CaptureConstraints) (core.SampleSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: err}
	}

	switch source {
	case domain.SourceCamera:
		if c.CameraFile == "" {
			return nil, &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: errNoCamera}
		}
		f, err := openFile(source, c.CameraFile)
		if err != nil {
			return nil, err
		}
		src, err := newIVFSource(f, c.Loop)
		if err != nil {
			_ = f.Close()
			return nil, &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: err}
		}
		if int(src.width) != cons.Width || int(src.height) != cons.Height {
			log.Debug().
				Str("module", "media").
				Int("want_width", cons.Width).
				Int("want_height", cons.Height).
				Uint16("width", src.width).
				Uint16("height", src.height).
				Msg("camera file resolution differs from constraints")
		}
		return src, nil

	case domain.SourceMicrophone:
		if c.MicFile == "" {
			log.Info().
				Str("module", "media").
				Bool("echo_cancellation", cons.EchoCancellation).
				Bool("noise_suppression", cons.NoiseSuppression).
				Bool("auto_gain_control", cons.AutoGainControl).
				Msg("microphone publishes silence")
			return NewSilenceSource(), nil
		}
		f, err := openFile(source, c.MicFile)
		if err != nil {
			return nil, err
		}
		src, err := newOggSource(f, c.Loop)
		if err != nil {
			_ = f.Close()
			return nil, &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: err}
		}
		return src, nil
	}

	return nil, &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: fmt.Errorf("unsupported source %s", source)}
}

func openFile(source domain.TrackSource, path string) (*os.File, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}
	reason := core.DeviceUnavailable
	if errors.Is(err, os.ErrPermission) {
		reason = core.DevicePermissionDenied
	}
	return nil, &core.DeviceError{Source: source, Reason: reason, Err: err}
}
