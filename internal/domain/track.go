package domain

type TrackKind int

const (
	KindAudio TrackKind = iota
	KindVideo
)

func (k TrackKind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

type TrackSource int

const (
	SourceOther TrackSource = iota
	SourceCamera
	SourceMicrophone
)

func (s TrackSource) String() string {
	switch s {
	case SourceCamera:
		return "camera"
	case SourceMicrophone:
		return "microphone"
	default:
		return "other"
	}
}

// Kind is the media kind a local source publishes.
func (s TrackSource) Kind() TrackKind {
	if s == SourceCamera {
		return KindVideo
	}
	return KindAudio
}

// TrackRef points at a track owned by the transport.
// MediaHandle is opaque here and must never be copied into a new handle.
type TrackRef struct {
	TrackID       string
	ParticipantID Identity
	Origin        Origin
	Kind          TrackKind
	Source        TrackSource
	MediaHandle   any
}

func (t TrackRef) IsLocal() bool { return t.Origin == OriginLocal }
func (t TrackRef) IsAgent() bool { return t.Origin == OriginAgent }
