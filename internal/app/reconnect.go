package app

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

const (
	DefaultReconnectDelay       = 2 * time.Second
	DefaultMaxReconnectAttempts = 3
)

// ReconnectState is the retry bookkeeping exposed to the views.
type ReconnectState struct {
	Attempts    int
	MaxAttempts int
	Backoff     time.Duration
}

// ReconnectConfig tunes the supervisor.
type ReconnectConfig struct {
	Delay       time.Duration
	MaxAttempts int
	// Attempt is invoked on the owner's loop when a scheduled reconnect fires.
	Attempt func(attempt int)
	// Exhausted is invoked once when the bound is hit and the supervisor fails.
	Exhausted func(attempts int)
}

// Supervisor decides when to reconnect after an unexpected disconnect.
// It is not safe for concurrent use; the session facade drives it from its loop.
type Supervisor struct {
	cfg     ReconnectConfig
	sched   Scheduler
	backoff retry.Backoff

	state   ReconnectState
	phase   domain.ConnectionPhase
	armed   bool
	pending *CancelToken
}

func NewSupervisor(cfg ReconnectConfig, sched Scheduler) *Supervisor {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultReconnectDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxReconnectAttempts
	}
	s := &Supervisor{cfg: cfg, sched: sched, phase: domain.PhaseDisconnected}
	s.reset()
	return s
}

func (s *Supervisor) reset() {
	s.backoff = retry.WithMaxRetries(uint64(s.cfg.MaxAttempts), retry.NewConstant(s.cfg.Delay))
	s.state = ReconnectState{MaxAttempts: s.cfg.MaxAttempts, Backoff: s.cfg.Delay}
}

func (s *Supervisor) Phase() domain.ConnectionPhase { return s.phase }
func (s *Supervisor) State() ReconnectState         { return s.state }
func (s *Supervisor) Pending() bool                 { return !s.pending.Cancelled() }

// UserConnect records an explicit connect. It clears Failed and resets the attempt budget.
func (s *Supervisor) UserConnect() {
	s.cancelPending()
	s.reset()
	s.armed = true
	s.phase = domain.PhaseConnecting
}

// UserDisconnect records an explicit disconnect. No automatic retry follows it.
func (s *Supervisor) UserDisconnect() {
	s.cancelPending()
	s.reset()
	s.armed = false
	s.phase = domain.PhaseDisconnected
}

// Stop cancels any pending attempt without changing the phase. Used on teardown.
func (s *Supervisor) Stop() {
	s.armed = false
	s.cancelPending()
}

// OnPhase feeds a phase reported by the transport or by a failed attempt.
func (s *Supervisor) OnPhase(p domain.ConnectionPhase) {
	if !s.armed {
		if p == domain.PhaseConnected {
			s.phase = p
		}
		return
	}
	switch p {
	case domain.PhaseConnected:
		if s.phase == domain.PhaseConnected {
			return
		}
		s.cancelPending()
		s.reset()
		s.phase = domain.PhaseConnected
		log.Info().Str("module", "app.reconnect").Msg("connected, attempts reset")

	case domain.PhaseConnecting:
		if s.phase != domain.PhaseReconnecting {
			s.phase = domain.PhaseConnecting
		}

	case domain.PhaseReconnecting:
		// The transport is recovering on its own; only a later Disconnected/Failed counts.
		if s.phase == domain.PhaseConnected {
			s.phase = domain.PhaseReconnecting
		}

	case domain.PhaseDisconnected, domain.PhaseFailed:
		if s.phase == domain.PhaseFailed {
			return
		}
		if s.Pending() {
			// Duplicate notification for the outage we already scheduled for.
			return
		}
		s.scheduleNext()
	}
}

// Fail moves to Failed immediately, e.g. for a non-retryable error.
func (s *Supervisor) Fail() {
	s.cancelPending()
	s.phase = domain.PhaseFailed
}

func (s *Supervisor) scheduleNext() {
	delay, stop := s.backoff.Next()
	if stop || s.state.Attempts >= s.state.MaxAttempts {
		s.phase = domain.PhaseFailed
		log.Warn().Str("module", "app.reconnect").Int("attempts", s.state.Attempts).Msg("reconnect attempts exhausted")
		if s.cfg.Exhausted != nil {
			s.cfg.Exhausted(s.state.Attempts)
		}
		return
	}

	s.state.Attempts++
	s.state.Backoff = delay
	s.phase = domain.PhaseReconnecting
	attempt := s.state.Attempts

	var tok *CancelToken
	tok = s.sched.Schedule(delay, func() {
		if tok.Cancelled() {
			return
		}
		// Consumed: later outages may schedule again.
		tok.Cancel()
		log.Info().Str("module", "app.reconnect").Int("attempt", attempt).Msg("reconnect attempt")
		if s.cfg.Attempt != nil {
			s.cfg.Attempt(attempt)
		}
	})
	s.pending = tok
	log.Info().Str("module", "app.reconnect").Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
}

func (s *Supervisor) cancelPending() {
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
}
