package media

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const SilenceFrameDuration = 20 * time.Millisecond

// opusSilence is one 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource publishes Opus silence until closed.
type SilenceSource struct {
	closed atomic.Bool
}

func NewSilenceSource() *SilenceSource { return &SilenceSource{} }

func (s *SilenceSource) MimeType() string { return webrtc.MimeTypeOpus }

func (s *SilenceSource) ReadSample() (media.Sample, error) {
	if s.closed.Load() {
		return media.Sample{}, io.EOF
	}
	frame := make([]byte, len(opusSilence))
	copy(frame, opusSilence)
	return media.Sample{Data: frame, Duration: SilenceFrameDuration}, nil
}

func (s *SilenceSource) Close() error {
	s.closed.Store(true)
	return nil
}
