package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

func (o *Orchestrator) handleEvent(ev app.Event) {
	switch ev.Kind {
	case app.EventPhase:
		o.onPhase(ev.Phase)
	case app.EventTracks:
		o.onTracks(ev.Tracks)
	case app.EventData:
		// Dropped messages are logged by the decoder and never stop the pipeline.
		_, _, _ = o.decoder.Handle(ev.Data)
	}
}

func (o *Orchestrator) onPhase(p domain.ConnectionPhase) {
	log.Debug().Str("module", "orch").Str("phase", p.String()).Msg("transport phase")

	failed := p == domain.PhaseDisconnected || p == domain.PhaseFailed
	// While an attempt is in flight its result, not the echo of it, drives the supervisor.
	if !(o.connecting && failed) {
		o.supervisor.OnPhase(p)
	}
	if p == domain.PhaseConnected {
		o.lastErr = nil
	}
	if failed {
		o.tracks = nil
		o.class = o.classify()
	}
	o.reconciler.Observe(o.ctx, p, o.desired)
}

func (o *Orchestrator) onTracks(tracks []domain.TrackRef) {
	o.tracks = tracks
	o.class = o.classify()

	// A published local input is not degraded.
	if o.class.LocalVideo != nil {
		delete(o.degraded, domain.SourceCamera)
	}
	if o.class.LocalMic != nil {
		delete(o.degraded, domain.SourceMicrophone)
	}
}

func (o *Orchestrator) classify() app.Classification {
	return app.Classify(o.tracks)
}

func (o *Orchestrator) onDeviceResult(res app.DeviceResult) {
	if res.Err == nil {
		delete(o.degraded, res.Source)
		return
	}
	if res.Action == app.SurfaceError {
		o.degraded[res.Source] = res.Err
	}
}
