package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const DefaultEnableGrace = time.Second

// TrackEnabler is the part of the session adapter the reconciler drives.
type TrackEnabler interface {
	SetLocalTrackEnabled(ctx context.Context, source domain.TrackSource, enabled bool) error
}

// DeviceResult is the outcome of one enable/disable call.
type DeviceResult struct {
	Source  domain.TrackSource
	Enabled bool
	Err     error
	Action  DeviceErrorAction
}

// Reconciler keeps local inputs in line with the desired state while connected.
// Not safe for concurrent use.
type Reconciler struct {
	enabler TrackEnabler
	policy  Policy
	sched   Scheduler
	grace   time.Duration
	report  func(DeviceResult)

	phase   domain.ConnectionPhase
	desired domain.DesiredInputState
	applied bool
	pending *CancelToken
}

// NewReconciler builds a reconciler; report receives every call outcome.
func NewReconciler(enabler TrackEnabler, policy Policy, sched Scheduler, grace time.Duration, report func(DeviceResult)) *Reconciler {
	if policy == nil {
		policy = SimplePolicy{}
	}
	if grace < 0 {
		grace = 0
	}
	return &Reconciler{
		enabler: enabler,
		policy:  policy,
		sched:   sched,
		grace:   grace,
		report:  report,
		phase:   domain.PhaseDisconnected,
	}
}

// Observe is called on every phase or desired-state change.
func (r *Reconciler) Observe(ctx context.Context, phase domain.ConnectionPhase, desired domain.DesiredInputState) {
	prevPhase, prevDesired := r.phase, r.desired
	r.phase, r.desired = phase, desired

	if phase != domain.PhaseConnected {
		r.cancel()
		r.applied = false
		return
	}

	if prevPhase != domain.PhaseConnected {
		// Desired state never carries over a reconnect; apply once per entry into Connected.
		r.cancel()
		if r.grace == 0 || r.sched == nil {
			r.Apply(ctx)
			return
		}
		r.pending = r.sched.Schedule(r.grace, func() { r.Apply(ctx) })
		return
	}

	if r.applied && prevDesired != desired {
		r.Apply(ctx)
	}
}

// Apply issues one enable/disable call per input. Each call is independent.
func (r *Reconciler) Apply(ctx context.Context) []DeviceResult {
	r.cancel()
	if r.phase != domain.PhaseConnected {
		return nil
	}
	r.applied = true
	results := []DeviceResult{
		r.set(ctx, domain.SourceMicrophone, r.desired.MicEnabled),
		r.set(ctx, domain.SourceCamera, r.desired.CameraEnabled),
	}
	return results
}

// Stop drops any pending grace timer. Used on teardown.
func (r *Reconciler) Stop() {
	r.cancel()
	r.phase = domain.PhaseDisconnected
	r.applied = false
}

func (r *Reconciler) set(ctx context.Context, source domain.TrackSource, enabled bool) (res DeviceResult) {
	res = DeviceResult{Source: source, Enabled: enabled}
	defer func() {
		if p := recover(); p != nil {
			res.Err = &core.DeviceError{Source: source, Reason: core.DeviceUnavailable, Err: errors.New("device call panicked")}
			res.Action = r.policy.OnDeviceError(source, enabled, res.Err)
			log.Error().Str("module", "app.devices").Str("source", source.String()).Interface("panic", p).Msg("recovered")
		}
		if r.report != nil {
			r.report(res)
		}
	}()

	if err := r.enabler.SetLocalTrackEnabled(ctx, source, enabled); err != nil {
		res.Err = err
		res.Action = r.policy.OnDeviceError(source, enabled, err)
		log.Warn().Err(err).Str("module", "app.devices").Str("source", source.String()).Bool("enabled", enabled).Msg("set track enabled failed")
		return res
	}
	log.Debug().Str("module", "app.devices").Str("source", source.String()).Bool("enabled", enabled).Msg("track state applied")
	return res
}

func (r *Reconciler) cancel() {
	if r.pending != nil {
		r.pending.Cancel()
		r.pending = nil
	}
}
