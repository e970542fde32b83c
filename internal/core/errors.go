package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

// Error classes. Typed errors below report their class through Is.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrNetwork           = errors.New("network error")
	ErrDevice            = errors.New("device error")
	ErrDecode            = errors.New("decode error")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrNotConnected      = errors.New("not connected")
)

type TokenReason int

const (
	TokenMissingConfig TokenReason = iota
	TokenNetworkFailure
	TokenServerRejected
)

func (r TokenReason) String() string {
	switch r {
	case TokenMissingConfig:
		return "missing_config"
	case TokenNetworkFailure:
		return "network_failure"
	default:
		return "server_rejected"
	}
}

// TokenError is returned by the token client.
type TokenError struct {
	Reason TokenReason
	// Status is the HTTP status for TokenServerRejected.
	Status int
	Err    error
}

func (e *TokenError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token %s (status %d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("token %s: %v", e.Reason, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

func (e *TokenError) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Reason == TokenMissingConfig
	case ErrNetwork:
		return e.Reason == TokenNetworkFailure || (e.Reason == TokenServerRejected && e.Status >= 500)
	}
	return false
}

// ConnectError is returned when the transport could not join the room.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string       { return "connect: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error       { return e.Err }
func (e *ConnectError) Is(target error) bool { return target == ErrNetwork }

type DeviceReason int

const (
	DeviceUnavailable DeviceReason = iota
	DevicePermissionDenied
)

func (r DeviceReason) String() string {
	if r == DevicePermissionDenied {
		return "permission_denied"
	}
	return "device_unavailable"
}

// DeviceError degrades a single local input; the session keeps running.
type DeviceError struct {
	Source domain.TrackSource
	Reason DeviceReason
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Reason, e.Err)
}

func (e *DeviceError) Unwrap() error        { return e.Err }
func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// DecodeError drops one data channel message.
type DecodeError struct {
	Topic string
	Err   error
}

func (e *DecodeError) Error() string        { return fmt.Sprintf("decode %q: %v", e.Topic, e.Err) }
func (e *DecodeError) Unwrap() error        { return e.Err }
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Retryable reports whether err may be retried by the reconnection supervisor.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrConfiguration) {
		return false
	}
	return errors.Is(err, ErrNetwork)
}
