package domain

// Participant is a member of the room as reported by the media server.
// No transport or lifecycle logic here.
type Participant struct {
	Identity Identity `json:"identity"`
	Agent    bool     `json:"agent"`
}

// Origin tags a track once, when the transport first reports it.
type Origin int

const (
	OriginRemote Origin = iota
	OriginLocal
	OriginAgent
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginAgent:
		return "agent"
	default:
		return "remote"
	}
}

// OriginOf assigns the origin of a track published by p, seen from local.
func OriginOf(p Participant, local Identity) Origin {
	switch {
	case p.Identity == local:
		return OriginLocal
	case p.Agent:
		return OriginAgent
	default:
		return OriginRemote
	}
}
