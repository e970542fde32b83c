package publish

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// Publisher owns the pumps of the published local inputs, at most one per source.
type Publisher struct {
	mu    sync.RWMutex
	pumps map[domain.TrackSource]*pump

	// OnEnded is called when a source stops on its own (EOF, read or write error).
	OnEnded func(*LocalTrack)
}

func NewPublisher() *Publisher {
	return &Publisher{
		pumps: make(map[domain.TrackSource]*pump),
	}
}

// Start publishes track fed by src and starts its pump. An existing pump for the
// same source is stopped first.
func (m *Publisher) Start(ctx context.Context, track *LocalTrack, src core.SampleSource) {
	logger := log.With().
		Str("module", "publish").
		Str("source", track.Source.String()).
		Str("track_id", track.ID).
		Logger()

	pumpCtx, cancel := context.WithCancel(ctx)
	p := newPump(track, src, cancel)

	m.mu.Lock()
	old, ok := m.pumps[track.Source]
	m.pumps[track.Source] = p
	m.mu.Unlock()
	if ok {
		logger.Info().Msg("replacing existing pump for source")
		old.stop()
	}

	logger.Info().Str("mime", src.MimeType()).Msg("starting pump")
	go p.loop(pumpCtx, &logger, func() { m.ended(p) })
}

func (m *Publisher) ended(p *pump) {
	m.mu.Lock()
	cur, ok := m.pumps[p.track.Source]
	if ok && cur == p {
		delete(m.pumps, p.track.Source)
	}
	m.mu.Unlock()
	if ok && cur == p && m.OnEnded != nil {
		m.OnEnded(p.track)
	}
}

// Mute keeps the pump pacing but stops writing samples.
func (m *Publisher) Mute(source domain.TrackSource, muted bool) bool {
	m.mu.RLock()
	p, ok := m.pumps[source]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if muted {
		p.track.MarkMuted()
	} else {
		p.track.MarkLive()
	}
	return true
}

// Stop stops the pump of source, waits for it to release its capture source and
// returns the track so the caller can unpublish it.
func (m *Publisher) Stop(source domain.TrackSource) (*LocalTrack, bool) {
	m.mu.Lock()
	p, ok := m.pumps[source]
	if ok {
		delete(m.pumps, source)
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	p.stop()
	return p.track, true
}

// StopAll stops every pump. Used when the session goes away.
func (m *Publisher) StopAll() []*LocalTrack {
	m.mu.Lock()
	pumps := m.pumps
	m.pumps = make(map[domain.TrackSource]*pump)
	m.mu.Unlock()

	out := make([]*LocalTrack, 0, len(pumps))
	for _, p := range pumps {
		p.stop()
		out = append(out, p.track)
	}
	return out
}

// Active reports whether source is currently published.
func (m *Publisher) Active(source domain.TrackSource) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pumps[source]
	return ok
}

// Tracks lists the published tracks, microphone first.
func (m *Publisher) Tracks() []*LocalTrack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*LocalTrack, 0, len(m.pumps))
	for _, src := range []domain.TrackSource{domain.SourceMicrophone, domain.SourceCamera} {
		if p, ok := m.pumps[src]; ok {
			out = append(out, p.track)
		}
	}
	return out
}

func (p *pump) stop() {
	p.track.MarkClosed()
	p.cancel()
	<-p.done
}
