package app

import (
	"errors"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

type DeviceErrorAction int

const (
	SuppressError DeviceErrorAction = iota
	SurfaceError
)

// Policy decides what the user sees when a local input fails.
type Policy interface {
	OnDeviceError(source domain.TrackSource, enabled bool, err error) DeviceErrorAction
}

// SimplePolicy surfaces failures to turn an input on and suppresses failures to turn it off.
type SimplePolicy struct{}

func (SimplePolicy) OnDeviceError(_ domain.TrackSource, enabled bool, err error) DeviceErrorAction {
	if !enabled || errors.Is(err, core.ErrNotConnected) {
		return SuppressError
	}
	return SurfaceError
}
