package orch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const DefaultConnectTimeout = 15 * time.Second

// TokenSource hands out session credentials.
type TokenSource interface {
	RequestCredential(ctx context.Context, identity domain.Identity, room domain.RoomName) (domain.Credential, error)
}

type Config struct {
	Identity             domain.Identity
	Room                 domain.RoomName
	Desired              domain.DesiredInputState
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	EnableGrace          time.Duration
	ConnectTimeout       time.Duration
	Publish              core.PublishOptions
	Policy               app.Policy
}

// Orchestrator is the session facade. All state below the channels is owned by the
// goroutine running Run; everything else talks to it through post.
type Orchestrator struct {
	cfg       Config
	tokens    TokenSource
	transport core.Transport

	adapter    *app.SessionAdapter
	supervisor *app.Supervisor
	reconciler *app.Reconciler
	transcript *app.TranscriptLog
	decoder    *app.TranscriptDecoder

	cmds    chan func()
	done    chan struct{}
	updates chan Snapshot
	current atomic.Pointer[Snapshot]

	ctx           context.Context
	desired       domain.DesiredInputState
	tracks        []domain.TrackRef
	class         app.Classification
	degraded      map[domain.TrackSource]error
	lastErr       error
	seq           int
	connecting    bool
	attemptCancel context.CancelFunc
}

func New(cfg Config, tokens TokenSource, transport core.Transport) *Orchestrator {
	if cfg.Identity == "" {
		cfg.Identity = domain.GenerateIdentity()
	}
	if cfg.Room == "" {
		cfg.Room = domain.DefaultRoom
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	o := &Orchestrator{
		cfg:        cfg,
		tokens:     tokens,
		transport:  transport,
		transcript: &app.TranscriptLog{},
		cmds:       make(chan func(), 64),
		done:       make(chan struct{}),
		updates:    make(chan Snapshot, 1),
		ctx:        context.Background(),
		desired:    cfg.Desired,
		degraded:   make(map[domain.TrackSource]error),
	}
	sched := app.PostScheduler{Post: o.post}

	o.adapter = app.NewSessionAdapter(transport, cfg.Publish)
	o.supervisor = app.NewSupervisor(app.ReconnectConfig{
		Delay:       cfg.ReconnectDelay,
		MaxAttempts: cfg.MaxReconnectAttempts,
		Attempt:     func(int) { o.startAttempt() },
		Exhausted:   o.onExhausted,
	}, sched)
	o.reconciler = app.NewReconciler(o.adapter, cfg.Policy, sched, cfg.EnableGrace, o.onDeviceResult)
	o.decoder = app.NewTranscriptDecoder(o.transcript, nil)

	snap := o.snapshot()
	o.current.Store(&snap)
	return o
}

// Run processes events until ctx is done, then tears the session down.
func (o *Orchestrator) Run(ctx context.Context) {
	o.ctx = ctx
	events := o.adapter.Events()
	log.Info().Str("module", "orch").Str("identity", string(o.cfg.Identity)).Str("room", string(o.cfg.Room)).Msg("session facade started")
	o.publish()

	for {
		select {
		case <-ctx.Done():
			o.teardown()
			return
		case fn := <-o.cmds:
			o.exec(fn)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			o.exec(func() { o.handleEvent(ev) })
		}
		o.publish()
	}
}

// Snapshot returns the latest published view models.
func (o *Orchestrator) Snapshot() Snapshot { return *o.current.Load() }

// Updates delivers the newest snapshot after each change. Closed after teardown.
func (o *Orchestrator) Updates() <-chan Snapshot { return o.updates }

// Connect asks for a session. Ignored while connected or connecting.
func (o *Orchestrator) Connect() { o.post(o.connect) }

// Disconnect ends the session; no automatic reconnect follows.
func (o *Orchestrator) Disconnect() { o.post(o.disconnect) }

// SetDesiredInputs records the camera/microphone state the user wants.
func (o *Orchestrator) SetDesiredInputs(d domain.DesiredInputState) {
	o.post(func() {
		o.desired = d
		o.reconciler.Observe(o.ctx, o.adapter.Phase(), d)
	})
}

// ToggleInput flips one input of the current desired state.
func (o *Orchestrator) ToggleInput(source domain.TrackSource) {
	o.post(func() {
		d := o.desired
		switch source {
		case domain.SourceCamera:
			d.CameraEnabled = !d.CameraEnabled
		case domain.SourceMicrophone:
			d.MicEnabled = !d.MicEnabled
		default:
			return
		}
		o.desired = d
		o.reconciler.Observe(o.ctx, o.adapter.Phase(), d)
	})
}

func (o *Orchestrator) post(fn func()) {
	select {
	case o.cmds <- fn:
	case <-o.done:
	}
}

func (o *Orchestrator) exec(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("module", "orch").Interface("panic", p).Msg("event handler recovered")
		}
	}()
	fn()
}

func (o *Orchestrator) publish() {
	snap := o.snapshot()
	o.current.Store(&snap)
	select {
	case o.updates <- snap:
	default:
		select {
		case <-o.updates:
		default:
		}
		select {
		case o.updates <- snap:
		default:
		}
	}
}
