// Package domain contains ids, records and errors shared by the server and the peer client.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

// ConnID is assigned by the transport and lives as long as the connection.
type ConnID string

// NewConnID returns a random connection id.
func NewConnID() ConnID { return ConnID(uuid.NewString()) }

// ParticipantID is the id other members use to address a participant.
type ParticipantID string

// Participant is the server-side record of one connected endpoint.
// Room and ID are mutated only by the room directory.
type Participant struct {
	Conn        ConnID
	ClientToken string
	DisplayName string

	ID   ParticipantID
	Room RoomID
}

// InRoom reports whether the participant currently belongs to a room.
func (p *Participant) InRoom() bool { return p.Room != "" }

// SetDisplayName applies the same limits the lobby enforces.
func (p *Participant) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.DisplayName = name
	return nil
}
