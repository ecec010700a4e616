package peer

// State is the negotiation state of one link.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateAnswering
	StateNegotiating
	StateConnected
	StateFailed
	StateRecovering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateRecovering:
		return "recovering"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Role says which side of the link sends offers.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

var transitions = map[State][]State{
	StateIdle:        {StateOffering, StateAnswering},
	StateOffering:    {StateNegotiating, StateFailed},
	StateAnswering:   {StateNegotiating, StateFailed},
	StateNegotiating: {StateConnected, StateFailed, StateRecovering},
	StateConnected:   {StateFailed, StateRecovering},
	StateFailed:      {StateRecovering},
	StateRecovering:  {StateNegotiating, StateConnected, StateFailed},
}

// canMove reports whether from -> to is a legal step. Closed is reachable
// from anywhere and left by nothing. A healthy path reported by the
// connection moves any open link to Connected.
func canMove(from, to State) bool {
	if from == StateClosed {
		return false
	}
	if to == StateClosed || to == StateConnected {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
