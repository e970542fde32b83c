package rtc

import (
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"github.com/dkeye/VoiceAgent/internal/core"
)

// trackStats counts packets of one remote track. It is the media handle exposed
// to the session, so the audio visualizer can show live activity.
type trackStats struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
	last    atomic.Int64
}

func (s *trackStats) observe(p *rtp.Packet, at time.Time) {
	s.packets.Add(1)
	s.bytes.Add(uint64(len(p.Payload)))
	s.last.Store(at.UnixNano())
}

func (s *trackStats) Stats() core.TrackStats {
	st := core.TrackStats{Packets: s.packets.Load(), Bytes: s.bytes.Load()}
	if ns := s.last.Load(); ns != 0 {
		st.LastPacket = time.Unix(0, ns)
	}
	return st
}
