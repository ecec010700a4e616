package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// RoomID names a call room. Valid ids are non-empty and use only [a-z0-9-].
type RoomID string

func (id RoomID) Validate() error {
	if !ValidRoomID(string(id)) {
		return ErrInvalidRoomID
	}
	return nil
}

// ValidRoomID reports whether s is a usable room id.
func ValidRoomID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

const (
	roomIDSegments   = 3
	roomIDSegmentLen = 4
	roomIDAlphabet   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateRoomID returns a fresh id shaped like "k3f9-a0zq-77ty".
func GenerateRoomID() RoomID {
	var b strings.Builder
	b.Grow(roomIDSegments*roomIDSegmentLen + roomIDSegments - 1)
	for s := 0; s < roomIDSegments; s++ {
		if s > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < roomIDSegmentLen; i++ {
			b.WriteByte(roomIDAlphabet[randomIndex(len(roomIDAlphabet))])
		}
	}
	return RoomID(b.String())
}

func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("domain: crypto/rand failed: " + err.Error())
	}
	return int(n.Int64())
}

// RoomInfo is a read-only view used by the lobby API.
type RoomInfo struct {
	ID           RoomID          `json:"id"`
	Participants []ParticipantID `json:"participants"`
	Count        int             `json:"count"`
}
