// Package protocol defines the signaling wire format shared by the server and the peer client.
//
// Every frame is a flat JSON object with a "type" discriminator. Client requests and
// server events are two closed sets of variants; anything outside them is rejected by
// DecodeRequest / DecodeEvent before it reaches application code.
package protocol

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/domain"
)

type Type string

const (
	TypeJoinRoom    Type = "join-room"
	TypeLeaveRoom   Type = "leave-room"
	TypeArrived     Type = "arrived"
	TypeDeparted    Type = "departed"
	TypeOffer       Type = "offer"
	TypeAnswer      Type = "answer"
	TypeCandidate   Type = "ice-candidate"
	TypeAudioState  Type = "audio-state-change"
	TypeScreenShare Type = "screen-share-state"
	TypeError       Type = "error"
	TypeWelcome     Type = "welcome"
	TypeJoined      Type = "joined"
	TypePing        Type = "ping"
	TypePong        Type = "pong"
)

// Message is the envelope as it appears on the wire.
type Message struct {
	Type Type `json:"type"`

	SessionID     domain.RoomID        `json:"sessionId,omitempty"`
	ParticipantID domain.ParticipantID `json:"participantId,omitempty"`
	DisplayName   string               `json:"displayName,omitempty"`
	ConnectionID  domain.ConnID        `json:"connectionId,omitempty"`

	TargetID domain.ParticipantID `json:"targetId,omitempty"`
	SenderID domain.ParticipantID `json:"senderId,omitempty"`

	Offer      *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer     *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate  *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	ICERestart bool                       `json:"iceRestart,omitempty"`

	IsAudioEnabled  *bool `json:"isAudioEnabled,omitempty"`
	IsScreenSharing *bool `json:"isScreenSharing,omitempty"`

	Members []domain.ParticipantID `json:"members,omitempty"`
	Text    string                 `json:"message,omitempty"`
}

// Request is a client-to-server message.
type Request interface {
	Kind() Type
	Message() Message
	request()
}

// Event is a server-to-client message.
type Event interface {
	Kind() Type
	Message() Message
	event()
}

// Client requests.

type Join struct {
	Room        domain.RoomID
	Participant domain.ParticipantID
	DisplayName string
}

type Leave struct{}

type Offer struct {
	Target     domain.ParticipantID
	SDP        webrtc.SessionDescription
	ICERestart bool
}

type Answer struct {
	Target domain.ParticipantID
	SDP    webrtc.SessionDescription
}

type Candidate struct {
	Target    domain.ParticipantID
	Candidate webrtc.ICECandidateInit
}

// AudioState announces the sender's microphone flag. Room is optional; when set it
// must match the sender's current room.
type AudioState struct {
	Room    domain.RoomID
	Enabled bool
}

type ScreenShare struct {
	Room    domain.RoomID
	Enabled bool
}

type Ping struct{}

// Server events.

type Welcome struct {
	Conn domain.ConnID
}

type Joined struct {
	Room        domain.RoomID
	Participant domain.ParticipantID
	Members     []domain.ParticipantID
}

type Arrived struct {
	Participant domain.ParticipantID
}

type Departed struct {
	Participant domain.ParticipantID
}

type RemoteOffer struct {
	Sender     domain.ParticipantID
	SDP        webrtc.SessionDescription
	ICERestart bool
}

type RemoteAnswer struct {
	Sender domain.ParticipantID
	SDP    webrtc.SessionDescription
}

type RemoteCandidate struct {
	Sender    domain.ParticipantID
	Candidate webrtc.ICECandidateInit
}

type RemoteAudioState struct {
	Sender  domain.ParticipantID
	Enabled bool
}

type RemoteScreenShare struct {
	Sender  domain.ParticipantID
	Enabled bool
}

type ServerError struct {
	Text string
}

type Pong struct{}

func (Join) Kind() Type        { return TypeJoinRoom }
func (Leave) Kind() Type       { return TypeLeaveRoom }
func (Offer) Kind() Type       { return TypeOffer }
func (Answer) Kind() Type      { return TypeAnswer }
func (Candidate) Kind() Type   { return TypeCandidate }
func (AudioState) Kind() Type  { return TypeAudioState }
func (ScreenShare) Kind() Type { return TypeScreenShare }
func (Ping) Kind() Type        { return TypePing }

func (Join) request()        {}
func (Leave) request()       {}
func (Offer) request()       {}
func (Answer) request()      {}
func (Candidate) request()   {}
func (AudioState) request()  {}
func (ScreenShare) request() {}
func (Ping) request()        {}

func (Welcome) Kind() Type           { return TypeWelcome }
func (Joined) Kind() Type            { return TypeJoined }
func (Arrived) Kind() Type           { return TypeArrived }
func (Departed) Kind() Type          { return TypeDeparted }
func (RemoteOffer) Kind() Type       { return TypeOffer }
func (RemoteAnswer) Kind() Type      { return TypeAnswer }
func (RemoteCandidate) Kind() Type   { return TypeCandidate }
func (RemoteAudioState) Kind() Type  { return TypeAudioState }
func (RemoteScreenShare) Kind() Type { return TypeScreenShare }
func (ServerError) Kind() Type       { return TypeError }
func (Pong) Kind() Type              { return TypePong }

func (Welcome) event()           {}
func (Joined) event()            {}
func (Arrived) event()           {}
func (Departed) event()          {}
func (RemoteOffer) event()       {}
func (RemoteAnswer) event()      {}
func (RemoteCandidate) event()   {}
func (RemoteAudioState) event()  {}
func (RemoteScreenShare) event() {}
func (ServerError) event()       {}
func (Pong) event()              {}

func (m Join) Message() Message {
	return Message{Type: TypeJoinRoom, SessionID: m.Room, ParticipantID: m.Participant, DisplayName: m.DisplayName}
}

func (Leave) Message() Message { return Message{Type: TypeLeaveRoom} }

func (m Offer) Message() Message {
	sdp := m.SDP
	return Message{Type: TypeOffer, TargetID: m.Target, Offer: &sdp, ICERestart: m.ICERestart}
}

func (m Answer) Message() Message {
	sdp := m.SDP
	return Message{Type: TypeAnswer, TargetID: m.Target, Answer: &sdp}
}

func (m Candidate) Message() Message {
	c := m.Candidate
	return Message{Type: TypeCandidate, TargetID: m.Target, Candidate: &c}
}

func (m AudioState) Message() Message {
	return Message{Type: TypeAudioState, SessionID: m.Room, IsAudioEnabled: boolPtr(m.Enabled)}
}

func (m ScreenShare) Message() Message {
	return Message{Type: TypeScreenShare, SessionID: m.Room, IsScreenSharing: boolPtr(m.Enabled)}
}

func (Ping) Message() Message { return Message{Type: TypePing} }

func (m Welcome) Message() Message { return Message{Type: TypeWelcome, ConnectionID: m.Conn} }

func (m Joined) Message() Message {
	return Message{Type: TypeJoined, SessionID: m.Room, ParticipantID: m.Participant, Members: m.Members}
}

func (m Arrived) Message() Message { return Message{Type: TypeArrived, ParticipantID: m.Participant} }

func (m Departed) Message() Message { return Message{Type: TypeDeparted, ParticipantID: m.Participant} }

func (m RemoteOffer) Message() Message {
	sdp := m.SDP
	return Message{Type: TypeOffer, SenderID: m.Sender, Offer: &sdp, ICERestart: m.ICERestart}
}

func (m RemoteAnswer) Message() Message {
	sdp := m.SDP
	return Message{Type: TypeAnswer, SenderID: m.Sender, Answer: &sdp}
}

func (m RemoteCandidate) Message() Message {
	c := m.Candidate
	return Message{Type: TypeCandidate, SenderID: m.Sender, Candidate: &c}
}

func (m RemoteAudioState) Message() Message {
	return Message{Type: TypeAudioState, SenderID: m.Sender, IsAudioEnabled: boolPtr(m.Enabled)}
}

func (m RemoteScreenShare) Message() Message {
	return Message{Type: TypeScreenShare, SenderID: m.Sender, IsScreenSharing: boolPtr(m.Enabled)}
}

func (m ServerError) Message() Message { return Message{Type: TypeError, Text: m.Text} }

func (Pong) Message() Message { return Message{Type: TypePong} }

func boolPtr(b bool) *bool { return &b }
