package peer

import (
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrMediaAcquisition  = errors.New("media acquisition failed")
	ErrLinkNegotiation   = errors.New("link negotiation failed")
	ErrTrackSubstitution = errors.New("track substitution failed")
	ErrServerRejected    = errors.New("rejected by server")
	ErrNoLocalMedia      = errors.New("no local media")
)

// OpError records which step failed and, for link errors, against whom.
type OpError struct {
	Op     string
	Remote domain.ParticipantID
	Kind   error
	Err    error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Remote != "" {
		msg += " " + string(e.Remote)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

// Unwrap exposes both the category and the cause to errors.Is.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op string, remote domain.ParticipantID, kind, err error) *OpError {
	return &OpError{Op: op, Remote: remote, Kind: kind, Err: err}
}
