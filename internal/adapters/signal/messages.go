package signal

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// Message types of the signaling protocol.
const (
	TypeJoin              = "join"
	TypeJoined            = "joined"
	TypeOffer             = "offer"
	TypeAnswer            = "answer"
	TypeCandidate         = "candidate"
	TypeLeave             = "leave"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeError             = "error"
)

type envelope struct {
	Type string `json:"type"`
}

// Join is the first message on a new connection.
type Join struct {
	Type          string              `json:"type"`
	Room          domain.RoomName     `json:"room"`
	Identity      domain.Identity     `json:"identity"`
	AutoSubscribe bool                `json:"auto_subscribe"`
	Publish       core.PublishOptions `json:"publish"`
}

// Joined answers Join with the current room membership.
type Joined struct {
	Type         string               `json:"type"`
	Participants []domain.Participant `json:"participants"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type ParticipantJoined struct {
	Type        string             `json:"type"`
	Participant domain.Participant `json:"participant"`
}

type ParticipantLeft struct {
	Type     string          `json:"type"`
	Identity domain.Identity `json:"identity"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Simple struct {
	Type string `json:"type"`
}

func NewCandidate(ci webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Type:          TypeCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}

func (c Candidate) Init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

// Encode marshals any of the message types above.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

// Decode returns a pointer to the typed message carried by f.
func Decode(f core.Frame) (any, error) {
	var env envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProtocolViolation, err)
	}

	var v any
	switch env.Type {
	case TypeJoined:
		v = &Joined{}
	case TypeOffer, TypeAnswer:
		v = &SessionDescription{}
	case TypeCandidate:
		v = &Candidate{}
	case TypeParticipantJoined:
		v = &ParticipantJoined{}
	case TypeParticipantLeft:
		v = &ParticipantLeft{}
	case TypeError:
		v = &Error{}
	case TypePing, TypePong, TypeLeave:
		v = &Simple{}
	default:
		return nil, fmt.Errorf("%w: unknown signal %q", core.ErrProtocolViolation, env.Type)
	}
	if err := json.Unmarshal(f, v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrProtocolViolation, env.Type, err)
	}
	return v, nil
}
