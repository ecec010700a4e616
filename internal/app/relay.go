package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
)

// User-visible error texts.
const (
	MsgInvalidRoom      = "Invalid room ID format"
	MsgParticipantTaken = "Participant ID already in use in this room"
	MsgTooManyJoins     = "Too many join attempts, try again later"
)

// Relay turns inbound signaling requests into deliveries. Handling is
// serialized: one request is processed at a time across all connections.
type Relay struct {
	mu      sync.Mutex
	dir     *Directory
	policy  Policy
	metrics *metrics.Metrics
}

func NewRelay(dir *Directory, policy Policy, m *metrics.Metrics) *Relay {
	if policy == nil {
		policy = SimplePolicy{Action: DropMessage}
	}
	return &Relay{dir: dir, policy: policy, metrics: m}
}

func (r *Relay) Directory() *Directory { return r.dir }

// Connect registers a fresh transport connection and tells the client its id.
func (r *Relay) Connect(id domain.ConnID, clientToken string, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dir.Connect(id, clientToken, conn)
	r.deliver("", Peer{ID: domain.ParticipantID(id), Conn: conn}, protocol.Welcome{Conn: id})
}

// Disconnect shares the leave path and then forgets the connection.
func (r *Relay) Disconnect(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.dir.Disconnect(id)
	r.announceLeave(res)
}

func (r *Relay) Handle(id domain.ConnID, req protocol.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := req.(type) {
	case protocol.Join:
		r.handleJoin(id, m)
	case protocol.Leave:
		r.announceLeave(r.dir.Leave(id))
	case protocol.Ping:
		r.reply(id, protocol.Pong{})
	case protocol.Offer:
		r.forward(id, m.Target, func(from domain.ParticipantID) protocol.Event {
			return protocol.RemoteOffer{Sender: from, SDP: m.SDP, ICERestart: m.ICERestart}
		})
	case protocol.Answer:
		r.forward(id, m.Target, func(from domain.ParticipantID) protocol.Event {
			return protocol.RemoteAnswer{Sender: from, SDP: m.SDP}
		})
	case protocol.Candidate:
		r.forward(id, m.Target, func(from domain.ParticipantID) protocol.Event {
			return protocol.RemoteCandidate{Sender: from, Candidate: m.Candidate}
		})
	case protocol.AudioState:
		r.broadcastState(id, m.Room, func(from domain.ParticipantID) protocol.Event {
			return protocol.RemoteAudioState{Sender: from, Enabled: m.Enabled}
		})
	case protocol.ScreenShare:
		r.broadcastState(id, m.Room, func(from domain.ParticipantID) protocol.Event {
			return protocol.RemoteScreenShare{Sender: from, Enabled: m.Enabled}
		})
	default:
		log.Warn().Str("module", "app.relay").Str("type", string(req.Kind())).Msg("unhandled request")
	}
}

// Reject sends a user-visible error to a connection without touching membership.
func (r *Relay) Reject(id domain.ConnID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reply(id, protocol.ServerError{Text: text})
}

// handleJoin leaves the participant record untouched when the join is rejected.
func (r *Relay) handleJoin(id domain.ConnID, m protocol.Join) {
	res, err := r.dir.Join(id, m.Room, m.Participant)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRoomID):
			r.metrics.Rejected(metrics.RejectInvalidRoom)
			r.reply(id, protocol.ServerError{Text: MsgInvalidRoom})
		case errors.Is(err, domain.ErrParticipantTaken):
			r.metrics.Rejected(metrics.RejectParticipantTaken)
			r.reply(id, protocol.ServerError{Text: MsgParticipantTaken})
		}
		log.Info().Err(err).Str("module", "app.relay").Str("conn", string(id)).Str("room", string(m.Room)).Msg("join rejected")
		return
	}
	if m.DisplayName != "" {
		if err := r.dir.Rename(id, m.DisplayName); err != nil {
			log.Debug().Err(err).Str("module", "app.relay").Str("conn", string(id)).Msg("display name ignored")
		}
	}

	if res.Left != nil {
		r.announceLeave(*res.Left)
	}

	members := make([]domain.ParticipantID, 0, len(res.Peers)+1)
	members = append(members, res.Participant)
	for _, p := range res.Peers {
		members = append(members, p.ID)
	}
	r.reply(id, protocol.Joined{Room: res.Room, Participant: res.Participant, Members: members})
	if !res.Rejoin {
		r.broadcast(res.Room, res.Peers, protocol.Arrived{Participant: res.Participant})
	}
	r.publishOccupancy()
}

func (r *Relay) announceLeave(res LeaveResult) {
	if !res.Left {
		return
	}
	r.broadcast(res.Room, res.Remaining, protocol.Departed{Participant: res.Participant})
	r.publishOccupancy()
}

// forward delivers a point-to-point frame to target inside the sender's room.
// Targets that are not there (left already, or never in this room) are dropped.
func (r *Relay) forward(id domain.ConnID, target domain.ParticipantID, build func(from domain.ParticipantID) protocol.Event) {
	room, from, ok := r.dir.RoomOf(id)
	if !ok {
		r.metrics.Dropped(metrics.ReasonNoRoom)
		return
	}
	conn, ok := r.dir.Route(room, target)
	if !ok || target == from {
		r.metrics.Dropped(metrics.ReasonUnknownTarget)
		log.Debug().
			Err(domain.ErrUnknownRelayTarget).
			Str("module", "app.relay").
			Str("room", string(room)).
			Str("participant", string(from)).
			Str("target", string(target)).
			Msg("dropping relay")
		return
	}
	r.deliver(room, Peer{ID: target, Conn: conn}, build(from))
}

// broadcastState fans a presence flag out to the rest of the room. A message
// naming a room other than the sender's current one is stale and dropped.
func (r *Relay) broadcastState(id domain.ConnID, named domain.RoomID, build func(from domain.ParticipantID) protocol.Event) {
	room, from, ok := r.dir.RoomOf(id)
	if !ok {
		r.metrics.Dropped(metrics.ReasonNoRoom)
		return
	}
	if named != "" && named != room {
		r.metrics.Dropped(metrics.ReasonRoomMismatch)
		return
	}
	r.broadcast(room, r.dir.Peers(id), build(from))
}

// reply answers the connection itself, joined or not.
func (r *Relay) reply(id domain.ConnID, ev protocol.Event) {
	p, conn, ok := r.dir.lookup(id)
	if !ok {
		return
	}
	pid := p.ID
	if pid == "" {
		pid = domain.ParticipantID(id)
	}
	r.deliver(p.Room, Peer{ID: pid, Conn: conn}, ev)
}

func (r *Relay) broadcast(room domain.RoomID, peers []Peer, ev protocol.Event) {
	if len(peers) == 0 {
		return
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode")
		return
	}
	for _, p := range peers {
		r.send(room, p, ev.Kind(), frame)
	}
}

func (r *Relay) deliver(room domain.RoomID, to Peer, ev protocol.Event) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode")
		return
	}
	r.send(room, to, ev.Kind(), frame)
}

func (r *Relay) send(room domain.RoomID, to Peer, kind protocol.Type, frame core.Frame) {
	err := to.Conn.TrySend(frame)
	switch {
	case err == nil:
		r.metrics.Relayed(string(kind))
	case errors.Is(err, core.ErrBackpressure):
		r.metrics.Dropped(metrics.ReasonBackpressure)
		action := r.policy.OnBackPressure(room, to.ID)
		log.Warn().
			Str("module", "app.relay").
			Str("room", string(room)).
			Str("participant", string(to.ID)).
			Str("type", string(kind)).
			Stringer("action", action).
			Msg("slow consumer")
		if action == KickMember {
			to.Conn.Close()
		}
	default:
		r.metrics.Dropped(metrics.ReasonClosed)
		log.Debug().Err(err).Str("module", "app.relay").Str("participant", string(to.ID)).Msg("send failed")
	}
}

func (r *Relay) publishOccupancy() {
	rooms, joined := r.dir.Stats()
	r.metrics.Occupancy(rooms, joined)
}
