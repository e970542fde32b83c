package domain

import "strings"

type RoomName string

// DefaultRoom is the room the front-end joins unless configured otherwise.
const DefaultRoom RoomName = "style-consultation"

func NewRoomName(raw string) (RoomName, error) {
	s := strings.TrimSpace(raw)
	if len(s) == 0 {
		return "", ErrRoomNameEmpty
	}
	if len(s) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(s), nil
}

// Session is one room membership of the local participant.
// Owned by the session adapter; everything else sees copies.
type Session struct {
	Identity   Identity
	RoomName   RoomName
	WSURL      string
	Credential string
	Phase      ConnectionPhase
}

// Credential is what the token backend hands out for a session.
type Credential struct {
	WSURL string
	Token string
}
