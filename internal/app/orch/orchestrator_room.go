package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const teardownTimeout = 2 * time.Second

func (o *Orchestrator) connect() {
	if o.connecting || o.adapter.Phase() == domain.PhaseConnected {
		return
	}
	o.supervisor.UserConnect()
	o.lastErr = nil
	o.startAttempt()
}

// startAttempt runs one token fetch + connect off the loop and posts the result back.
func (o *Orchestrator) startAttempt() {
	o.cancelAttempt()
	o.seq++
	seq := o.seq
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.ConnectTimeout)
	o.attemptCancel = cancel
	o.connecting = true

	identity, room := o.cfg.Identity, o.cfg.Room
	log.Info().Str("module", "orch").Int("seq", seq).Str("room", string(room)).Msg("connect attempt")
	go func() {
		defer cancel()
		err := o.connectOnce(ctx, identity, room)
		o.post(func() { o.onAttemptResult(seq, err) })
	}()
}

func (o *Orchestrator) connectOnce(ctx context.Context, identity domain.Identity, room domain.RoomName) error {
	cred, err := o.tokens.RequestCredential(ctx, identity, room)
	if err != nil {
		return err
	}
	return o.adapter.Connect(ctx, identity, room, cred)
}

func (o *Orchestrator) onAttemptResult(seq int, err error) {
	if seq != o.seq {
		if err == nil && !o.connecting && o.supervisor.Phase() == domain.PhaseDisconnected {
			// A disconnect overtook this attempt.
			o.adapter.Disconnect()
		}
		return
	}
	o.connecting = false
	o.attemptCancel = nil
	if err == nil {
		o.lastErr = nil
		// A drop reported before this result was not fed to the supervisor.
		if p := o.adapter.Phase(); p == domain.PhaseDisconnected || p == domain.PhaseFailed {
			o.supervisor.OnPhase(p)
		}
		return
	}

	o.lastErr = err
	if !core.Retryable(err) {
		log.Error().Err(err).Str("module", "orch").Msg("connect failed, not retrying")
		o.supervisor.Fail()
		return
	}
	log.Warn().Err(err).Str("module", "orch").Msg("connect failed")
	o.supervisor.OnPhase(domain.PhaseFailed)
}

func (o *Orchestrator) onExhausted(attempts int) {
	o.lastErr = fmt.Errorf("reconnect failed after %d attempts: %w", attempts, core.ErrNetwork)
}

func (o *Orchestrator) disconnect() {
	o.cancelAttempt()
	o.seq++
	o.connecting = false
	o.supervisor.UserDisconnect()
	o.reconciler.Observe(o.ctx, domain.PhaseDisconnected, o.desired)
	o.adapter.Disconnect()
	o.resetSession()
	log.Info().Str("module", "orch").Msg("disconnected by user")
}

func (o *Orchestrator) resetSession() {
	o.transcript.Reset()
	o.tracks = nil
	o.class = o.classify()
	clear(o.degraded)
}

func (o *Orchestrator) cancelAttempt() {
	if o.attemptCancel != nil {
		o.attemptCancel()
		o.attemptCancel = nil
	}
}

// teardown cancels timers, disables local inputs, stops consuming events and only then
// releases the transport.
func (o *Orchestrator) teardown() {
	o.cancelAttempt()
	o.seq++
	o.supervisor.Stop()
	o.reconciler.Stop()

	if o.adapter.Phase() == domain.PhaseConnected {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		for _, src := range []domain.TrackSource{domain.SourceCamera, domain.SourceMicrophone} {
			if err := o.adapter.SetLocalTrackEnabled(ctx, src, false); err != nil {
				log.Debug().Err(err).Str("module", "orch").Str("source", src.String()).Msg("disable on teardown")
			}
		}
		cancel()
	}

	o.adapter.Close()
	if err := o.transport.Disconnect(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("transport release")
	}
	o.resetSession()
	close(o.done)
	close(o.updates)
	log.Info().Str("module", "orch").Msg("session facade stopped")
}
