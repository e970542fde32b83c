// Package rtc is the pion/webrtc implementation of core.Transport.
//
// One Transport holds at most one connection. Remote tracks are announced with
// their stream id set to the publishing participant's identity.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/adapters/signal"
	"github.com/dkeye/VoiceAgent/internal/app/publish"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// DefaultDataTopic is the data channel the agent publishes transcription on.
const DefaultDataTopic = "transcription"

var errNoCapturer = errors.New("no capturer configured")

type DialFunc func(ctx context.Context, url, token string) (core.SignalConnection, error)

type Config struct {
	ICEServers []string
	Capturer   core.Capturer
	// DataTopics are the data channels opened by the client. The server may open more.
	DataTopics []string
	Dial       DialFunc
}

func DefaultConfig() Config {
	return Config{
		DataTopics: []string{DefaultDataTopic},
		Dial:       dialWS,
	}
}

func dialWS(ctx context.Context, url, token string) (core.SignalConnection, error) {
	c, err := signal.Dial(ctx, url, token)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type Transport struct {
	cfg    Config
	webrtc webrtc.Configuration

	subMu  sync.Mutex
	subSeq int
	subs   map[int]core.TransportEvents
	emitMu sync.Mutex

	mu      sync.Mutex
	current *connection
}

func New(cfg Config) *Transport {
	if cfg.Dial == nil {
		cfg.Dial = dialWS
	}
	return &Transport{
		cfg:    cfg,
		webrtc: DefaultWebRTCConfig(cfg.ICEServers),
		subs:   make(map[int]core.TransportEvents),
	}
}

func (t *Transport) Subscribe(ev core.TransportEvents) func() {
	t.subMu.Lock()
	t.subSeq++
	id := t.subSeq
	t.subs[id] = ev
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

func (t *Transport) subscribers() []core.TransportEvents {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]core.TransportEvents, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.subs[id])
	}
	return out
}

func (t *Transport) emitPhase(p domain.ConnectionPhase) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	for _, s := range t.subscribers() {
		if s.OnPhase != nil {
			s.OnPhase(p)
		}
	}
}

func (t *Transport) emitTracks(tracks []domain.TrackRef) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	for _, s := range t.subscribers() {
		if s.OnTracks != nil {
			s.OnTracks(tracks)
		}
	}
}

func (t *Transport) emitData(m core.DataMessage) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	for _, s := range t.subscribers() {
		if s.OnData != nil {
			s.OnData(m)
		}
	}
}

func (t *Transport) isCurrent(conn *connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current == conn
}

// detach clears conn as the current connection. It reports false if conn was not current.
func (t *Transport) detach(conn *connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != conn {
		return false
	}
	t.current = nil
	return true
}

func (t *Transport) tracksOf(conn *connection) {
	if t.isCurrent(conn) {
		t.emitTracks(conn.registry.Snapshot())
	}
}

// Connect joins opts.Room and returns once the peer connection is up.
func (t *Transport) Connect(ctx context.Context, url, credential string, opts core.ConnectOptions) error {
	t.mu.Lock()
	prev := t.current
	t.current = nil
	t.mu.Unlock()
	if prev != nil {
		prev.close(true)
	}

	identity := opts.Identity
	if sub, err := identityFromToken(credential); err == nil {
		if identity != "" && sub != identity {
			log.Warn().Str("module", "rtc").Str("identity", string(identity)).Str("subject", string(sub)).Msg("credential subject differs from identity, using subject")
		}
		identity = sub
	} else if identity == "" {
		return fmt.Errorf("%w: no identity in credential: %v", core.ErrConfiguration, err)
	}

	sig, err := t.cfg.Dial(ctx, url, credential)
	if err != nil {
		return fmt.Errorf("%w: signal dial: %v", core.ErrNetwork, err)
	}
	conn, err := newConnection(t.webrtc, identity, sig)
	if err != nil {
		sig.Close()
		return err
	}
	t.bind(conn)
	if err := conn.start(t.cfg.DataTopics); err != nil {
		conn.close(false)
		return err
	}

	t.mu.Lock()
	t.current = conn
	t.mu.Unlock()

	go t.readLoop(conn)

	log.Info().Str("module", "rtc").Str("identity", string(identity)).Str("room", string(opts.Room)).Msg("joining")
	conn.send(signal.Join{
		Type:          signal.TypeJoin,
		Room:          opts.Room,
		Identity:      identity,
		AutoSubscribe: opts.AutoSubscribe,
		Publish:       opts.Publish,
	})

	if err := await(ctx, conn, conn.joined); err != nil {
		t.abort(conn)
		return fmt.Errorf("join: %w", err)
	}
	conn.negotiate()
	if err := await(ctx, conn, conn.connected); err != nil {
		t.abort(conn)
		return fmt.Errorf("ice: %w", err)
	}
	log.Info().Str("module", "rtc").Str("identity", string(identity)).Msg("connected")
	return nil
}

func await(ctx context.Context, conn *connection, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case err := <-conn.failed:
		if errors.Is(err, core.ErrNetwork) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrNetwork, err)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", core.ErrNetwork, ctx.Err())
	}
}

// abort drops a connection that never came up. Nothing is emitted.
func (t *Transport) abort(conn *connection) {
	t.detach(conn)
	conn.close(true)
}

func (t *Transport) bind(conn *connection) {
	conn.onState = func(s webrtc.PeerConnectionState) {
		if !t.isCurrent(conn) {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			t.emitPhase(domain.PhaseConnected)
		case webrtc.PeerConnectionStateDisconnected:
			if conn.isConnected() {
				t.emitPhase(domain.PhaseReconnecting)
			}
		case webrtc.PeerConnectionStateFailed:
			if conn.isConnected() {
				t.lost(conn, errICEFailed)
			}
		}
	}

	conn.onData = func(m core.DataMessage) {
		if t.isCurrent(conn) {
			t.emitData(m)
		}
	}

	conn.onTrack = func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := domain.KindAudio
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = domain.KindVideo
		}
		trackID := track.ID()
		stats := conn.registry.AddRemote(trackID, domain.Identity(track.StreamID()), kind)
		t.tracksOf(conn)

		go func() {
			for {
				pkt, _, err := track.ReadRTP()
				if err != nil {
					log.Debug().Err(err).Str("module", "rtc").Str("track_id", trackID).Msg("remote track ended")
					if conn.registry.RemoveRemote(trackID) && ctx.Err() == nil {
						t.tracksOf(conn)
					}
					return
				}
				stats.observe(pkt, time.Now())
			}
		}()
	}

	conn.publisher.OnEnded = func(lt *publish.LocalTrack) {
		log.Info().Str("module", "rtc").Str("source", lt.Source.String()).Msg("local source ended, unpublishing")
		conn.registry.Unpublish(lt.Source)
		conn.unpublish(lt)
		t.tracksOf(conn)
	}
}

func (t *Transport) readLoop(conn *connection) {
	for f := range conn.sig.Frames() {
		v, err := signal.Decode(f)
		if err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("dropping signal")
			continue
		}
		switch m := v.(type) {
		case *signal.Joined:
			conn.registry.SetParticipants(m.Participants)
			t.tracksOf(conn)
			conn.markJoined()
		case *signal.SessionDescription:
			if m.Type == signal.TypeAnswer {
				conn.applyAnswer(m.SDP)
			} else {
				conn.applyOffer(m.SDP)
			}
		case *signal.Candidate:
			conn.addCandidate(m.Init())
		case *signal.ParticipantJoined:
			conn.registry.AddParticipant(m.Participant)
			t.tracksOf(conn)
		case *signal.ParticipantLeft:
			conn.registry.RemoveParticipant(m.Identity)
			t.tracksOf(conn)
		case *signal.Error:
			err := fmt.Errorf("%w: server: %s", core.ErrNetwork, m.Message)
			log.Error().Err(err).Str("module", "rtc").Msg("signal error")
			conn.fail(err)
			if conn.isConnected() {
				t.lost(conn, err)
			}
		case *signal.Simple:
			if m.Type == signal.TypePing {
				conn.send(signal.Simple{Type: signal.TypePong})
			}
		}
	}

	if err := conn.sig.Err(); err != nil {
		conn.fail(fmt.Errorf("%w: %v", errSignalingLost, err))
		if conn.isConnected() {
			t.lost(conn, err)
		}
	}
}

// lost ends a connection that dropped on its own.
func (t *Transport) lost(conn *connection, err error) {
	if !t.detach(conn) {
		return
	}
	log.Warn().Err(err).Str("module", "rtc").Str("identity", string(conn.identity)).Msg("connection lost")
	go conn.close(false)
	t.emitTracks(nil)
	t.emitPhase(domain.PhaseDisconnected)
}

// Disconnect leaves the room. Safe to call repeatedly.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.current
	t.current = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.close(true)
	t.emitTracks(nil)
	t.emitPhase(domain.PhaseDisconnected)
	return nil
}

func (t *Transport) connected() *connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || !t.current.isConnected() {
		return nil
	}
	return t.current
}

func (t *Transport) SetTrackEnabled(ctx context.Context, source domain.TrackSource, enabled bool) error {
	conn := t.connected()
	if conn == nil {
		return core.ErrNotConnected
	}

	if !enabled {
		if !conn.removeLocalTrack(source) {
			return nil
		}
		conn.registry.Unpublish(source)
		t.tracksOf(conn)
		return nil
	}

	if conn.publisher.Active(source) {
		return nil
	}
	if t.cfg.Capturer == nil {
		return &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: errNoCapturer}
	}
	src, err := t.cfg.Capturer.Open(ctx, source, core.DefaultConstraints(source))
	if err != nil {
		return err
	}
	lt, err := conn.addLocalTrack(source, src)
	if err != nil {
		_ = src.Close()
		return &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: err}
	}
	conn.registry.Publish(domain.TrackRef{
		TrackID:       lt.ID,
		ParticipantID: conn.identity,
		Origin:        domain.OriginLocal,
		Kind:          source.Kind(),
		Source:        source,
		MediaHandle:   lt,
	})
	t.tracksOf(conn)
	return nil
}
