package app

import "github.com/dkeye/VoiceAgent/internal/domain"

// Classification is the per-surface selection of tracks. Nil means nothing to show.
type Classification struct {
	LocalVideo *domain.TrackRef
	LocalMic   *domain.TrackRef
	AgentVideo *domain.TrackRef
	AgentAudio *domain.TrackRef
}

// Classify picks at most one track per surface, first match in enumeration order.
// It keeps no state and may be called on every track-set change.
func Classify(tracks []domain.TrackRef) Classification {
	var c Classification
	for i := range tracks {
		t := &tracks[i]
		switch t.Origin {
		case domain.OriginLocal:
			switch t.Source {
			case domain.SourceCamera:
				if c.LocalVideo == nil {
					c.LocalVideo = t
				}
			case domain.SourceMicrophone:
				if c.LocalMic == nil {
					c.LocalMic = t
				}
			}
		case domain.OriginAgent:
			switch t.Kind {
			case domain.KindVideo:
				if c.AgentVideo == nil {
					c.AgentVideo = t
				}
			case domain.KindAudio:
				if c.AgentAudio == nil {
					c.AgentAudio = t
				}
			}
		}
	}
	return c
}
