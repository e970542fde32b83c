package publish

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceAgent/internal/core"
)

// pump moves samples from a capture source into a local track at the source's pace.
type pump struct {
	track  *LocalTrack
	src    core.SampleSource
	cancel context.CancelFunc
	done   chan struct{}
}

func newPump(track *LocalTrack, src core.SampleSource, cancel context.CancelFunc) *pump {
	return &pump{track: track, src: src, cancel: cancel, done: make(chan struct{})}
}

// loop returns on cancel, on a closed track, or when the source runs dry.
func (p *pump) loop(ctx context.Context, logger *zerolog.Logger, ended func()) {
	defer close(p.done)
	defer func() {
		if err := p.src.Close(); err != nil {
			logger.Warn().Err(err).Msg("capture source close")
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("pump ctx done")
			p.track.MarkClosed()
			return
		case <-timer.C:
		}

		sample, err := p.src.ReadSample()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("capture source ended")
			} else {
				logger.Error().Err(err).Msg("capture read error, stopping")
			}
			p.track.MarkClosed()
			if ended != nil {
				ended()
			}
			return
		}

		switch p.track.State() {
		case TrackStateClosed:
			return
		case TrackStateMuted:
		case TrackStateLive:
			if err := p.track.Writer.WriteSample(sample); err != nil {
				logger.Error().Err(err).Msg("write sample error, closing track")
				p.track.MarkClosed()
				if ended != nil {
					ended()
				}
				return
			}
			p.track.samples.Add(1)
		}

		timer.Reset(sample.Duration)
	}
}
