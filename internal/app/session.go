package app

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

type EventKind int

const (
	EventPhase EventKind = iota
	EventTracks
	EventData
)

// Event is one entry of the adapter's live sequence.
type Event struct {
	Kind   EventKind
	Phase  domain.ConnectionPhase
	Tracks []domain.TrackRef
	Data   core.DataMessage
}

// DefaultPublishOptions is adaptive stream + dynacast with a 720p/360p simulcast pair.
func DefaultPublishOptions() core.PublishOptions {
	return core.PublishOptions{
		AdaptiveStream: true,
		Dynacast:       true,
		Simulcast:      true,
		VideoLayers: []core.VideoLayer{
			{Name: "hd", Width: 1280, Height: 720, MaxBitrate: 1_500_000, MaxFramerate: 30},
			{Name: "sd", Width: 640, Height: 360, MaxBitrate: 500_000, MaxFramerate: 30},
		},
	}
}

// SessionAdapter owns one transport instance and the session riding on it.
// Events are queued without blocking the transport and delivered in order.
type SessionAdapter struct {
	transport   core.Transport
	publish     core.PublishOptions
	unsubscribe func()

	mu      sync.Mutex
	session domain.Session

	qmu    sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
	done   chan struct{}
	events chan Event
	once   sync.Once
}

func NewSessionAdapter(t core.Transport, publish core.PublishOptions) *SessionAdapter {
	a := &SessionAdapter{
		transport: t,
		publish:   publish,
		session:   domain.Session{Phase: domain.PhaseDisconnected},
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		events:    make(chan Event, 16),
	}
	a.unsubscribe = t.Subscribe(core.TransportEvents{
		OnPhase:  a.onTransportPhase,
		OnTracks: a.onTransportTracks,
		OnData:   a.onTransportData,
	})
	go a.forward()
	return a
}

// Events is the live sequence of phase, track-set and data snapshots.
// It is closed after Close.
func (a *SessionAdapter) Events() <-chan Event { return a.events }

func (a *SessionAdapter) Phase() domain.ConnectionPhase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Phase
}

// Session returns a copy of the current session.
func (a *SessionAdapter) Session() domain.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Connect joins the room. It is a no-op when already connected.
func (a *SessionAdapter) Connect(ctx context.Context, identity domain.Identity, room domain.RoomName, cred domain.Credential) error {
	a.mu.Lock()
	if a.session.Phase == domain.PhaseConnected {
		a.mu.Unlock()
		return nil
	}
	a.session.Identity = identity
	a.session.RoomName = room
	a.session.WSURL = cred.WSURL
	a.session.Credential = cred.Token
	a.mu.Unlock()

	a.setPhase(domain.PhaseConnecting)
	err := a.transport.Connect(ctx, cred.WSURL, cred.Token, core.ConnectOptions{
		Identity:      identity,
		Room:          room,
		AutoSubscribe: true,
		Publish:       a.publish,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("url", cred.WSURL).Msg("connect failed")
		// A disconnect during the attempt already moved the phase on.
		a.swapPhase(domain.PhaseConnecting, domain.PhaseFailed)
		var ce *core.ConnectError
		if errors.As(err, &ce) {
			return ce
		}
		return &core.ConnectError{Err: err}
	}
	a.swapPhase(domain.PhaseConnecting, domain.PhaseConnected)
	log.Info().Str("module", "app.session").Str("identity", string(identity)).Str("room", string(room)).Msg("connected")
	return nil
}

// Disconnect leaves the room. It always succeeds and may be called repeatedly.
func (a *SessionAdapter) Disconnect() {
	if err := a.transport.Disconnect(); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Msg("transport disconnect")
	}
	a.mu.Lock()
	a.session.Credential = ""
	a.mu.Unlock()
	a.setPhase(domain.PhaseDisconnected)
	a.emit(Event{Kind: EventTracks})
}

// SetLocalTrackEnabled turns a local input on or off. Failures come back as *core.DeviceError
// (or core.ErrNotConnected) and never affect the session.
func (a *SessionAdapter) SetLocalTrackEnabled(ctx context.Context, source domain.TrackSource, enabled bool) error {
	if a.Phase() != domain.PhaseConnected {
		return core.ErrNotConnected
	}
	err := a.transport.SetTrackEnabled(ctx, source, enabled)
	if err == nil {
		return nil
	}
	var de *core.DeviceError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, core.ErrNotConnected) {
		return err
	}
	return &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: err}
}

// Close unsubscribes from the transport and ends the event sequence.
// The caller releases the transport afterwards.
func (a *SessionAdapter) Close() {
	a.once.Do(func() {
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		a.qmu.Lock()
		a.closed = true
		a.queue = nil
		a.qmu.Unlock()
		close(a.done)
	})
}

func (a *SessionAdapter) onTransportPhase(p domain.ConnectionPhase) {
	a.setPhase(p)
}

func (a *SessionAdapter) onTransportTracks(tracks []domain.TrackRef) {
	snapshot := make([]domain.TrackRef, len(tracks))
	copy(snapshot, tracks)
	a.emit(Event{Kind: EventTracks, Tracks: snapshot})
}

func (a *SessionAdapter) onTransportData(msg core.DataMessage) {
	a.emit(Event{Kind: EventData, Data: msg})
}

func (a *SessionAdapter) setPhase(p domain.ConnectionPhase) {
	a.mu.Lock()
	if a.session.Phase == p {
		a.mu.Unlock()
		return
	}
	a.session.Phase = p
	// Emit under mu so concurrent phase changes enter the queue in the order they were applied.
	a.emit(Event{Kind: EventPhase, Phase: p})
	a.mu.Unlock()
	log.Debug().Str("module", "app.session").Str("phase", p.String()).Msg("phase")
}

func (a *SessionAdapter) swapPhase(from, to domain.ConnectionPhase) {
	a.mu.Lock()
	if a.session.Phase != from {
		a.mu.Unlock()
		return
	}
	a.session.Phase = to
	a.emit(Event{Kind: EventPhase, Phase: to})
	a.mu.Unlock()
}

func (a *SessionAdapter) emit(ev Event) {
	a.qmu.Lock()
	if a.closed {
		a.qmu.Unlock()
		return
	}
	a.queue = append(a.queue, ev)
	a.qmu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *SessionAdapter) forward() {
	defer close(a.events)
	for {
		a.qmu.Lock()
		batch := a.queue
		a.queue = nil
		a.qmu.Unlock()

		for _, ev := range batch {
			select {
			case a.events <- ev:
			case <-a.done:
				return
			}
		}
		select {
		case <-a.wake:
		case <-a.done:
			return
		}
	}
}
