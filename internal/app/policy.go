package app

import (
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
)

type BackpressureAction int

const (
	// DropMessage discards the frame and keeps the member connected.
	DropMessage BackpressureAction = iota
	// KickMember closes the slow member's connection; its disconnect then
	// runs the normal leave path.
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropMessage:
		return "drop"
	case KickMember:
		return "kick"
	default:
		return fmt.Sprintf("BackpressureAction(%d)", int(a))
	}
}

type Policy interface {
	OnBackPressure(room domain.RoomID, member domain.ParticipantID) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(domain.RoomID, domain.ParticipantID) BackpressureAction {
	return p.Action
}

// PolicyFor maps the backpressure config value to a policy.
func PolicyFor(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return SimplePolicy{Action: DropMessage}, nil
	case "kick":
		return SimplePolicy{Action: KickMember}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
