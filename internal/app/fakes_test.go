package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// manualScheduler fires timers only when the test says so.
type manualScheduler struct {
	timers []*manualTimer
}

type manualTimer struct {
	d   time.Duration
	fn  func()
	tok *CancelToken
}

func (s *manualScheduler) Schedule(d time.Duration, fn func()) *CancelToken {
	tok := NewCancelToken(nil)
	s.timers = append(s.timers, &manualTimer{d: d, fn: fn, tok: tok})
	return tok
}

// live returns the timers that have not been cancelled or fired.
func (s *manualScheduler) live() []*manualTimer {
	var out []*manualTimer
	for _, t := range s.timers {
		if !t.tok.Cancelled() {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every live timer once and reports how many ran.
func (s *manualScheduler) fire() int {
	pending := s.live()
	s.timers = nil
	n := 0
	for _, t := range pending {
		if t.tok.Cancelled() {
			continue
		}
		n++
		t.fn()
		t.tok.Cancel()
	}
	return n
}

type enableCall struct {
	source  domain.TrackSource
	enabled bool
}

type fakeTransport struct {
	mu          sync.Mutex
	events      core.TransportEvents
	connectErr  error
	enableErr   error
	connects    int
	disconnects int
	lastOpts    core.ConnectOptions
	lastURL     string
	calls       []enableCall
	// during runs inside Connect before it returns.
	during func()
}

func (f *fakeTransport) Connect(_ context.Context, url, _ string, opts core.ConnectOptions) error {
	f.mu.Lock()
	f.connects++
	f.lastURL = url
	f.lastOpts = opts
	err := f.connectErr
	during := f.during
	f.mu.Unlock()
	if during != nil {
		during()
	}
	if err != nil {
		return err
	}
	f.phase(domain.PhaseConnected)
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SetTrackEnabled(_ context.Context, source domain.TrackSource, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enableCall{source: source, enabled: enabled})
	return f.enableErr
}

func (f *fakeTransport) Subscribe(ev core.TransportEvents) func() {
	f.mu.Lock()
	f.events = ev
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.events = core.TransportEvents{}
		f.mu.Unlock()
	}
}

func (f *fakeTransport) phase(p domain.ConnectionPhase) {
	f.mu.Lock()
	fn := f.events.OnPhase
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (f *fakeTransport) tracks(ts ...domain.TrackRef) {
	f.mu.Lock()
	fn := f.events.OnTracks
	f.mu.Unlock()
	if fn != nil {
		fn(ts)
	}
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}
