package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

type ivfSource struct {
	f        *os.File
	r        *ivfreader.IVFReader
	mime     string
	frameDur time.Duration
	width    uint16
	height   uint16
	loop     bool
}

func mimeForFourCC(fourcc string) (string, error) {
	switch fourcc {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("unsupported ivf codec %q", fourcc)
}

func newIVFSource(f *os.File, loop bool) (*ivfSource, error) {
	r, h, err := ivfreader.NewWith(f)
	if err != nil {
		return nil, err
	}
	mime, err := mimeForFourCC(h.FourCC)
	if err != nil {
		return nil, err
	}
	if h.TimebaseNumerator == 0 {
		return nil, errors.New("ivf timebase numerator is zero")
	}
	return &ivfSource{
		f:        f,
		r:        r,
		mime:     mime,
		frameDur: time.Duration(float64(time.Second) * float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator)),
		width:    h.Width,
		height:   h.Height,
		loop:     loop,
	}, nil
}

func (s *ivfSource) MimeType() string { return s.mime }

func (s *ivfSource) ReadSample() (media.Sample, error) {
	frame, _, err := s.r.ParseNextFrame()
	if errors.Is(err, io.EOF) && s.loop {
		if err := s.rewind(); err != nil {
			return media.Sample{}, err
		}
		frame, _, err = s.r.ParseNextFrame()
	}
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: frame, Duration: s.frameDur}, nil
}

func (s *ivfSource) rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r, _, err := ivfreader.NewWith(s.f)
	if err != nil {
		return err
	}
	s.r = r
	return nil
}

func (s *ivfSource) Close() error { return s.f.Close() }
