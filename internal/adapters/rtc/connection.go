package rtc

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/adapters/signal"
	"github.com/dkeye/VoiceAgent/internal/app/publish"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

var (
	errICEFailed     = errors.New("ice connection failed")
	errSignalingLost = errors.New("signaling connection lost")
)

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// connection is one room membership: a peer connection plus its signaling channel.
type connection struct {
	pc        *webrtc.PeerConnection
	sig       core.SignalConnection
	identity  domain.Identity
	registry  *trackRegistry
	publisher *publish.Publisher
	ctx       context.Context
	cancel    context.CancelFunc

	onTrack func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onData  func(core.DataMessage)
	onState func(webrtc.PeerConnectionState)

	joined    chan struct{}
	connected chan struct{}
	failed    chan error
	joinOnce  sync.Once
	connOnce  sync.Once
	failOnce  sync.Once

	mu          sync.Mutex
	pending     []webrtc.ICECandidateInit
	negotiating bool
	needsOffer  bool
	closed      bool
}

func newConnection(cfg webrtc.Configuration, identity domain.Identity, sig core.SignalConnection) (*connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		pc:        pc,
		sig:       sig,
		identity:  identity,
		registry:  newTrackRegistry(identity),
		publisher: publish.NewPublisher(),
		ctx:       ctx,
		cancel:    cancel,
		joined:    make(chan struct{}),
		connected: make(chan struct{}),
		failed:    make(chan error, 1),
	}, nil
}

// start installs the peer connection handlers, the receive transceivers and the
// client side data channels.
func (c *connection) start(topics []string) error {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("identity", string(c.identity)).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.connOnce.Do(func() { close(c.connected) })
		case webrtc.PeerConnectionStateFailed:
			c.fail(errICEFailed)
		}
		if c.onState != nil {
			c.onState(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.send(signal.NewCandidate(cand.ToJSON()))
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(c.ctx, track, receiver)
		}
	})

	c.pc.OnDataChannel(c.bindDataChannel)

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	for _, topic := range topics {
		dc, err := c.pc.CreateDataChannel(topic, nil)
		if err != nil {
			return err
		}
		c.bindDataChannel(dc)
	}
	return nil
}

func (c *connection) bindDataChannel(dc *webrtc.DataChannel) {
	topic := dc.Label()
	log.Debug().Str("module", "rtc").Str("topic", topic).Msg("data channel")
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.onData != nil {
			c.onData(core.DataMessage{Topic: topic, Payload: msg.Data})
		}
	})
}

func (c *connection) send(v any) {
	f, err := signal.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("encode signal")
		return
	}
	if err := c.sig.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("send signal")
	}
}

// negotiate sends a fresh offer, or queues one while an offer is outstanding.
func (c *connection) negotiate() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.negotiating {
		c.needsOffer = true
		c.mu.Unlock()
		return
	}
	c.negotiating = true
	c.mu.Unlock()

	offer, err := c.pc.CreateOffer(nil)
	if err == nil {
		err = c.pc.SetLocalDescription(offer)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("create offer")
		c.mu.Lock()
		c.negotiating = false
		c.mu.Unlock()
		c.fail(err)
		return
	}
	c.send(signal.SessionDescription{Type: signal.TypeOffer, SDP: offer.SDP})
}

func (c *connection) applyAnswer(sdp string) {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("apply answer")
		c.fail(err)
		return
	}
	c.flushCandidates()

	c.mu.Lock()
	c.negotiating = false
	again := c.needsOffer
	c.needsOffer = false
	c.mu.Unlock()
	if again {
		c.negotiate()
	}
}

// applyOffer answers a renegotiation started by the server.
func (c *connection) applyOffer(sdp string) {
	c.mu.Lock()
	busy := c.negotiating
	c.mu.Unlock()
	if busy {
		log.Warn().Str("module", "rtc").Msg("server offer while our offer is outstanding, ignored")
		return
	}

	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("apply offer")
		return
	}
	c.flushCandidates()
	answer, err := c.pc.CreateAnswer(nil)
	if err == nil {
		err = c.pc.SetLocalDescription(answer)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("create answer")
		return
	}
	c.send(signal.SessionDescription{Type: signal.TypeAnswer, SDP: answer.SDP})
}

func (c *connection) addCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if err := c.pc.AddICECandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("add ice candidate")
	}
}

func (c *connection) flushCandidates() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ci := range pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("add buffered ice candidate")
		}
	}
}

// addLocalTrack publishes src as a new outbound track and starts pumping it.
func (c *connection) addLocalTrack(source domain.TrackSource, src core.SampleSource) (*publish.LocalTrack, error) {
	id := source.String() + "-" + uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: src.MimeType()}, id, string(c.identity))
	if err != nil {
		return nil, err
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go drainRTCP(sender)

	lt := publish.NewLocalTrack(id, source, track, sender)
	c.publisher.Start(c.ctx, lt, src)
	c.negotiate()
	return lt, nil
}

// removeLocalTrack stops the pump of source and unpublishes its track.
func (c *connection) removeLocalTrack(source domain.TrackSource) bool {
	lt, ok := c.publisher.Stop(source)
	if !ok {
		return false
	}
	c.unpublish(lt)
	return true
}

func (c *connection) unpublish(lt *publish.LocalTrack) {
	if sender, ok := lt.Handle.(*webrtc.RTPSender); ok {
		if err := c.pc.RemoveTrack(sender); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("track_id", lt.ID).Msg("remove track")
		}
	}
	c.negotiate()
}

func (c *connection) markJoined() { c.joinOnce.Do(func() { close(c.joined) }) }

func (c *connection) fail(err error) {
	c.failOnce.Do(func() { c.failed <- err })
}

func (c *connection) isConnected() bool {
	select {
	case <-c.connected:
		return true
	default:
		return false
	}
}

// close releases capture, media and signaling. Safe to call repeatedly.
func (c *connection) close(leave bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if leave {
		c.send(signal.Simple{Type: signal.TypeLeave})
	}
	c.publisher.StopAll()
	c.cancel()
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("identity", string(c.identity)).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("identity", string(c.identity)).Msg("closed")
	}
	c.sig.Close()
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "rtc").Msg("rtcp read ended")
			}
			return
		}
	}
}
