package rtc

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

type remoteEntry struct {
	seq   uint64
	ref   domain.TrackRef
	stats *trackStats
}

// trackRegistry is the live track set of one connection: room members, their
// published tracks and our own published tracks.
type trackRegistry struct {
	local domain.Identity

	mu           sync.RWMutex
	seq          uint64
	participants map[domain.Identity]domain.Participant
	remote       map[string]*remoteEntry
	published    map[domain.TrackSource]domain.TrackRef
}

func newTrackRegistry(local domain.Identity) *trackRegistry {
	return &trackRegistry{
		local:        local,
		participants: make(map[domain.Identity]domain.Participant),
		remote:       make(map[string]*remoteEntry),
		published:    make(map[domain.TrackSource]domain.TrackRef),
	}
}

// SetParticipants replaces the membership, e.g. on joined.
func (r *trackRegistry) SetParticipants(ps []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = make(map[domain.Identity]domain.Participant, len(ps))
	for _, p := range ps {
		r.participants[p.Identity] = p
	}
	r.retagLocked()
	log.Info().Str("module", "rtc.registry").Int("participants", len(ps)).Msg("membership set")
}

func (r *trackRegistry) AddParticipant(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.Identity] = p
	r.retagLocked()
	log.Info().Str("module", "rtc.registry").Str("identity", string(p.Identity)).Bool("agent", p.Agent).Msg("participant joined")
}

// RemoveParticipant drops the participant and every track it published.
func (r *trackRegistry) RemoveParticipant(id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
	for tid, e := range r.remote {
		if e.ref.ParticipantID == id {
			delete(r.remote, tid)
		}
	}
	log.Info().Str("module", "rtc.registry").Str("identity", string(id)).Msg("participant left")
}

// AddRemote registers a subscribed track and returns its stats handle.
func (r *trackRegistry) AddRemote(trackID string, owner domain.Identity, kind domain.TrackKind) *trackStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[owner]
	if !ok {
		p = domain.Participant{Identity: owner}
		r.participants[owner] = p
	}
	stats := &trackStats{}
	r.seq++
	r.remote[trackID] = &remoteEntry{
		seq:   r.seq,
		stats: stats,
		ref: domain.TrackRef{
			TrackID:       trackID,
			ParticipantID: owner,
			Origin:        domain.OriginOf(p, r.local),
			Kind:          kind,
			Source:        remoteSource(trackID, kind),
			MediaHandle:   stats,
		},
	}
	return stats
}

func (r *trackRegistry) RemoveRemote(trackID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.remote[trackID]; !ok {
		return false
	}
	delete(r.remote, trackID)
	return true
}

func (r *trackRegistry) Publish(ref domain.TrackRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[ref.Source] = ref
}

func (r *trackRegistry) Unpublish(source domain.TrackSource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.published[source]; !ok {
		return false
	}
	delete(r.published, source)
	return true
}

// Snapshot lists local tracks (microphone, camera) then remote tracks in arrival order.
func (r *trackRegistry) Snapshot() []domain.TrackRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TrackRef, 0, len(r.published)+len(r.remote))
	for _, src := range []domain.TrackSource{domain.SourceMicrophone, domain.SourceCamera} {
		if ref, ok := r.published[src]; ok {
			out = append(out, ref)
		}
	}
	entries := make([]*remoteEntry, 0, len(r.remote))
	for _, e := range r.remote {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for _, e := range entries {
		out = append(out, e.ref)
	}
	return out
}

// retagLocked fixes the origin of tracks that arrived before their owner was announced.
func (r *trackRegistry) retagLocked() {
	for _, e := range r.remote {
		if p, ok := r.participants[e.ref.ParticipantID]; ok {
			e.ref.Origin = domain.OriginOf(p, r.local)
		}
	}
}

func remoteSource(trackID string, kind domain.TrackKind) domain.TrackSource {
	if strings.Contains(strings.ToLower(trackID), "screen") {
		return domain.SourceOther
	}
	if kind == domain.KindVideo {
		return domain.SourceCamera
	}
	return domain.SourceMicrophone
}
