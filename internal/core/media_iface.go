package core

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var ErrNoDevice = errors.New("no capture device")

// ConnState is the health of one media connection as reported by the stack.
type ConnState int

const (
	ConnNew ConnState = iota
	ConnConnecting
	ConnConnected
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnNew:
		return "new"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}

// LocalTrack is an outgoing capture track. The enabled flag mutes the track
// in place without detaching it from any connection.
type LocalTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(bool)
	// Stop releases the capture source. Ended is closed afterwards.
	Stop()
	// Ended is closed when the source stops, including when capture is
	// revoked outside the application.
	Ended() <-chan struct{}
}

// TrackSender feeds one outgoing track slot of a connection.
type TrackSender interface {
	// ReplaceTrack swaps the source without renegotiating.
	ReplaceTrack(LocalTrack) error
}

type MediaConnection interface {
	AddTrack(LocalTrack) (TrackSender, error)
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnStateChange(func(ConnState))
	OnTrack(func(*webrtc.TrackRemote))

	Close() error
}

type MediaConnectionFactory interface {
	NewConnection() (MediaConnection, error)
}

type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

func (f FacingMode) Toggle() FacingMode {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

type DeviceInfo struct {
	ID    string
	Label string
}

type Constraints struct {
	Audio    bool
	Video    bool
	DeviceID string
	Facing   FacingMode
}

// MediaSource is the result of one capture request. Either track may be nil
// when it was not requested.
type MediaSource struct {
	Audio LocalTrack
	Video LocalTrack
}

type MediaDevices interface {
	// Cameras lists video inputs. An empty list means the platform only
	// exposes a facing mode.
	Cameras(ctx context.Context) ([]DeviceInfo, error)
	Open(ctx context.Context, c Constraints) (MediaSource, error)
	OpenScreen(ctx context.Context) (LocalTrack, error)
}
