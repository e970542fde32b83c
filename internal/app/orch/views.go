package orch

import (
	"strings"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const (
	CameraOffText     = "Camera is off"
	NoAgentText       = "No Agent Available. Re-Connect to get started."
	WaitingForAgent   = "Waiting for An Agent To Become Online"
	AgentStatePending = "pending"
	RoomStatePending  = "PENDING"
	settingsTrue      = "TRUE"
	settingsFalse     = "FALSE"
)

type VideoView struct {
	Track       *domain.TrackRef
	Placeholder string
}

// AudioView either shows Message or a visualizer bound to Track.
type AudioView struct {
	Message string
	Track   *domain.TrackRef
	// Meter is set when the track's media handle reports receive statistics.
	Meter core.StatsReporter
}

type ChatView struct {
	Active  bool
	Entries []domain.TranscriptEntry
}

type SettingsView struct {
	AgentID        string
	ParticipantID  string
	RoomState      string
	AgentConnected string
	Camera         bool
	Microphone     bool
	CameraError    string
	MicError       string
	Attempts       int
	MaxAttempts    int
	LastError      string
}

// Snapshot is a read-only copy of everything the front-end renders.
type Snapshot struct {
	Phase    domain.ConnectionPhase
	Desired  domain.DesiredInputState
	Video    VideoView
	Audio    AudioView
	Chat     ChatView
	Settings SettingsView
}

// phase is what the user sees: the supervisor's view while it is retrying or has given up,
// the transport's otherwise.
func (o *Orchestrator) phase() domain.ConnectionPhase {
	switch sp := o.supervisor.Phase(); sp {
	case domain.PhaseReconnecting, domain.PhaseFailed:
		return sp
	}
	return o.adapter.Phase()
}

func (o *Orchestrator) snapshot() Snapshot {
	phase := o.phase()
	c := o.class
	rs := o.supervisor.State()

	s := Snapshot{Phase: phase, Desired: o.desired}

	s.Video = VideoView{Placeholder: CameraOffText}
	if c.LocalVideo != nil {
		t := *c.LocalVideo
		s.Video = VideoView{Track: &t}
	}

	switch {
	case phase == domain.PhaseDisconnected:
		s.Audio = AudioView{Message: NoAgentText}
	case c.AgentAudio == nil:
		s.Audio = AudioView{Message: WaitingForAgent}
	default:
		t := *c.AgentAudio
		s.Audio = AudioView{Track: &t}
		if m, ok := t.MediaHandle.(core.StatsReporter); ok {
			s.Audio.Meter = m
		}
	}

	s.Chat = ChatView{Active: c.AgentAudio != nil, Entries: o.transcript.Entries()}

	s.Settings = SettingsView{
		AgentID:        string(o.cfg.Room),
		ParticipantID:  string(o.cfg.Identity),
		RoomState:      roomState(phase),
		AgentConnected: agentConnected(phase, c.AgentAudio != nil),
		Camera:         c.LocalVideo != nil,
		Microphone:     c.LocalMic != nil,
		CameraError:    errText(o.degraded[domain.SourceCamera]),
		MicError:       errText(o.degraded[domain.SourceMicrophone]),
		Attempts:       rs.Attempts,
		MaxAttempts:    rs.MaxAttempts,
		LastError:      errText(o.lastErr),
	}
	return s
}

func roomState(p domain.ConnectionPhase) string {
	if p == domain.PhaseConnecting {
		return RoomStatePending
	}
	return strings.ToUpper(p.String())
}

func agentConnected(p domain.ConnectionPhase, agentAudio bool) string {
	switch {
	case agentAudio:
		return settingsTrue
	case p == domain.PhaseConnected:
		return AgentStatePending
	default:
		return settingsFalse
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
