package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// maxQueuedCandidates bounds candidates held before a remote description.
const maxQueuedCandidates = 128

// Link is the media connection to one remote participant together with its
// negotiation state.
type Link struct {
	remote domain.ParticipantID
	role   Role
	conn   core.MediaConnection
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	remoteSet bool
	queue     []webrtc.ICECandidateInit
	senders   map[webrtc.RTPCodecType]core.TrackSender
	restarted bool
}

func newLink(remote domain.ParticipantID, role Role, conn core.MediaConnection, log zerolog.Logger) *Link {
	return &Link{
		remote:  remote,
		role:    role,
		conn:    conn,
		log:     log.With().Str("remote", string(remote)).Stringer("role", role).Logger(),
		senders: make(map[webrtc.RTPCodecType]core.TrackSender),
	}
}

func (l *Link) Remote() domain.ParticipantID { return l.remote }
func (l *Link) Role() Role                   { return l.role }

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) closed() bool {
	return l.State() == StateClosed
}

// move performs a state transition and reports whether it happened.
func (l *Link) move(to State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(to)
}

func (l *Link) moveLocked(to State) bool {
	from := l.state
	if from == to {
		return true
	}
	if !canMove(from, to) {
		l.log.Debug().Stringer("from", from).Stringer("to", to).Msg("transition refused")
		return false
	}
	l.state = to
	l.log.Debug().Stringer("from", from).Stringer("to", to).Msg("link state")
	return true
}

func (l *Link) attach(tracks []core.LocalTrack) error {
	for _, t := range tracks {
		s, err := l.conn.AddTrack(t)
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.senders[t.Kind()] = s
		l.mu.Unlock()
	}
	return nil
}

func (l *Link) sender(kind webrtc.RTPCodecType) core.TrackSender {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.senders[kind]
}

// applyRemote sets the remote description and then flushes queued
// candidates in arrival order.
func (l *Link) applyRemote(sd webrtc.SessionDescription) error {
	if err := l.conn.SetRemoteDescription(sd); err != nil {
		return err
	}
	l.mu.Lock()
	l.remoteSet = true
	queued := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, c := range queued {
		if err := l.conn.AddICECandidate(c); err != nil {
			l.log.Warn().Err(err).Msg("queued candidate rejected")
		}
	}
	return nil
}

// addCandidate applies c or, before the remote description exists, queues it.
func (l *Link) addCandidate(c webrtc.ICECandidateInit) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	if !l.remoteSet {
		if len(l.queue) >= maxQueuedCandidates {
			l.mu.Unlock()
			l.log.Warn().Msg("candidate queue full, dropping")
			return
		}
		l.queue = append(l.queue, c)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if err := l.conn.AddICECandidate(c); err != nil {
		l.log.Warn().Err(err).Msg("candidate rejected")
	}
}

func (l *Link) queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// beginRestart marks the single allowed ICE restart. It returns false once
// the restart has been spent.
func (l *Link) beginRestart() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.restarted || l.state == StateClosed {
		return false
	}
	l.restarted = true
	return l.moveLocked(StateRecovering)
}

func (l *Link) close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = StateClosed
	l.queue = nil
	l.mu.Unlock()

	if err := l.conn.Close(); err != nil {
		l.log.Debug().Err(err).Msg("close")
	}
}
