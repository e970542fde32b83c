package publish

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateClosed
)

// SampleWriter is the outbound side of a local track, e.g. *webrtc.TrackLocalStaticSample.
type SampleWriter interface {
	WriteSample(media.Sample) error
}

// LocalTrack is one published local input.
type LocalTrack struct {
	ID     string
	Source domain.TrackSource
	Writer SampleWriter
	// Handle is whatever the transport needs to unpublish the track (an RTP sender).
	Handle any

	state   atomic.Int32 // TrackStateLive by default
	samples atomic.Uint64
}

func NewLocalTrack(id string, source domain.TrackSource, w SampleWriter, handle any) *LocalTrack {
	return &LocalTrack{ID: id, Source: source, Writer: w, Handle: handle}
}

func (t *LocalTrack) State() TrackState { return TrackState(t.state.Load()) }

func (t *LocalTrack) MarkLive()   { t.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateLive)) }
func (t *LocalTrack) MarkMuted()  { t.state.CompareAndSwap(int32(TrackStateLive), int32(TrackStateMuted)) }
func (t *LocalTrack) MarkClosed() { t.state.Store(int32(TrackStateClosed)) }

// Samples is the number of samples written so far.
func (t *LocalTrack) Samples() uint64 { return t.samples.Load() }
