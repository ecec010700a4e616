package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	ErrBadMessage  = errors.New("bad message")
	ErrUnknownType = errors.New("unknown message type")
)

// Encodable is implemented by every Request and Event.
type Encodable interface {
	Message() Message
}

func Encode(v Encodable) ([]byte, error) {
	b, err := json.Marshal(v.Message())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", v.Message().Type, err)
	}
	return b, nil
}

func unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrBadMessage)
	}
	return m, nil
}

func missing(t Type, field string) error {
	return fmt.Errorf("%w: %s without %s", ErrBadMessage, t, field)
}

func checkSDP(t Type, sd *webrtc.SessionDescription, want webrtc.SDPType, field string) error {
	if sd == nil || sd.SDP == "" {
		return missing(t, field)
	}
	if sd.Type != want {
		return fmt.Errorf("%w: %s carries %s description", ErrBadMessage, t, sd.Type)
	}
	return nil
}

// DecodeRequest parses and validates a client frame.
// Room ids are not checked lexically here; that is the relay's job so it can
// answer with a user-visible error.
func DecodeRequest(data []byte) (Request, error) {
	m, err := unmarshal(data)
	if err != nil {
		return nil, err
	}

	switch m.Type {
	case TypeJoinRoom:
		return Join{Room: m.SessionID, Participant: m.ParticipantID, DisplayName: m.DisplayName}, nil
	case TypeLeaveRoom:
		return Leave{}, nil
	case TypePing:
		return Ping{}, nil
	case TypeOffer:
		if err := checkSDP(m.Type, m.Offer, webrtc.SDPTypeOffer, "offer"); err != nil {
			return nil, err
		}
		if m.TargetID == "" {
			return nil, missing(m.Type, "targetId")
		}
		return Offer{Target: m.TargetID, SDP: *m.Offer, ICERestart: m.ICERestart}, nil
	case TypeAnswer:
		if err := checkSDP(m.Type, m.Answer, webrtc.SDPTypeAnswer, "answer"); err != nil {
			return nil, err
		}
		if m.TargetID == "" {
			return nil, missing(m.Type, "targetId")
		}
		return Answer{Target: m.TargetID, SDP: *m.Answer}, nil
	case TypeCandidate:
		if m.Candidate == nil {
			return nil, missing(m.Type, "candidate")
		}
		if m.TargetID == "" {
			return nil, missing(m.Type, "targetId")
		}
		return Candidate{Target: m.TargetID, Candidate: *m.Candidate}, nil
	case TypeAudioState:
		if m.IsAudioEnabled == nil {
			return nil, missing(m.Type, "isAudioEnabled")
		}
		return AudioState{Room: m.SessionID, Enabled: *m.IsAudioEnabled}, nil
	case TypeScreenShare:
		if m.IsScreenSharing == nil {
			return nil, missing(m.Type, "isScreenSharing")
		}
		return ScreenShare{Room: m.SessionID, Enabled: *m.IsScreenSharing}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// DecodeEvent parses and validates a server frame.
func DecodeEvent(data []byte) (Event, error) {
	m, err := unmarshal(data)
	if err != nil {
		return nil, err
	}

	switch m.Type {
	case TypeWelcome:
		if m.ConnectionID == "" {
			return nil, missing(m.Type, "connectionId")
		}
		return Welcome{Conn: m.ConnectionID}, nil
	case TypeJoined:
		return Joined{Room: m.SessionID, Participant: m.ParticipantID, Members: m.Members}, nil
	case TypeArrived:
		if m.ParticipantID == "" {
			return nil, missing(m.Type, "participantId")
		}
		return Arrived{Participant: m.ParticipantID}, nil
	case TypeDeparted:
		if m.ParticipantID == "" {
			return nil, missing(m.Type, "participantId")
		}
		return Departed{Participant: m.ParticipantID}, nil
	case TypeOffer:
		if err := checkSDP(m.Type, m.Offer, webrtc.SDPTypeOffer, "offer"); err != nil {
			return nil, err
		}
		if m.SenderID == "" {
			return nil, missing(m.Type, "senderId")
		}
		return RemoteOffer{Sender: m.SenderID, SDP: *m.Offer, ICERestart: m.ICERestart}, nil
	case TypeAnswer:
		if err := checkSDP(m.Type, m.Answer, webrtc.SDPTypeAnswer, "answer"); err != nil {
			return nil, err
		}
		if m.SenderID == "" {
			return nil, missing(m.Type, "senderId")
		}
		return RemoteAnswer{Sender: m.SenderID, SDP: *m.Answer}, nil
	case TypeCandidate:
		if m.Candidate == nil {
			return nil, missing(m.Type, "candidate")
		}
		if m.SenderID == "" {
			return nil, missing(m.Type, "senderId")
		}
		return RemoteCandidate{Sender: m.SenderID, Candidate: *m.Candidate}, nil
	case TypeAudioState:
		if m.IsAudioEnabled == nil || m.SenderID == "" {
			return nil, missing(m.Type, "isAudioEnabled or senderId")
		}
		return RemoteAudioState{Sender: m.SenderID, Enabled: *m.IsAudioEnabled}, nil
	case TypeScreenShare:
		if m.IsScreenSharing == nil || m.SenderID == "" {
			return nil, missing(m.Type, "isScreenSharing or senderId")
		}
		return RemoteScreenShare{Sender: m.SenderID, Enabled: *m.IsScreenSharing}, nil
	case TypeError:
		return ServerError{Text: m.Text}, nil
	case TypePong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}
