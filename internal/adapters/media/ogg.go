package media

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// Opus granule positions always count 48kHz samples.
const opusClockRate = 48000

type oggSource struct {
	f           *os.File
	r           *oggreader.OggReader
	lastGranule uint64
	loop        bool
}

func newOggSource(f *os.File, loop bool) (*oggSource, error) {
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		return nil, err
	}
	return &oggSource{f: f, r: r, loop: loop}, nil
}

func (s *oggSource) MimeType() string { return webrtc.MimeTypeOpus }

func (s *oggSource) ReadSample() (media.Sample, error) {
	page, hdr, err := s.r.ParseNextPage()
	if errors.Is(err, io.EOF) && s.loop {
		if err := s.rewind(); err != nil {
			return media.Sample{}, err
		}
		page, hdr, err = s.r.ParseNextPage()
	}
	if err != nil {
		return media.Sample{}, err
	}

	samples := hdr.GranulePosition - s.lastGranule
	if hdr.GranulePosition < s.lastGranule {
		samples = 0
	}
	s.lastGranule = hdr.GranulePosition
	dur := time.Duration(float64(samples) / opusClockRate * float64(time.Second))
	return media.Sample{Data: page, Duration: dur}, nil
}

func (s *oggSource) rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r, _, err := oggreader.NewWith(s.f)
	if err != nil {
		return err
	}
	s.r = r
	s.lastGranule = 0
	return nil
}

func (s *oggSource) Close() error { return s.f.Close() }
