package domain

import "errors"

var (
	ErrInvalidRoomID      = errors.New("invalid room id")
	ErrParticipantTaken   = errors.New("participant id already in use in this room")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrNotInRoom          = errors.New("not in a room")
	ErrUnknownRelayTarget = errors.New("relay target is not in the sender's room")
)
