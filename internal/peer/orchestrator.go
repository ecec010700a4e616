// Package peer drives the client side of a mesh call: one negotiated media
// link per remote participant, and the local capture sources shared by all
// of them.
package peer

import (
	"context"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
)

// maxPendingSenders bounds how many unknown senders may have candidates
// buffered at once.
const maxPendingSenders = 32

// Signaler delivers requests to the signaling server. Send must not block.
type Signaler interface {
	Send(protocol.Request) error
}

// TrackSource yields the local tracks every new link starts with.
type TrackSource interface {
	Tracks() []core.LocalTrack
}

// RemoteState is what a remote participant announced about its media.
type RemoteState struct {
	AudioEnabled  bool
	ScreenSharing bool
}

// RemoteSink is the rendering side. Attach may be called once per remote
// track; Detach releases everything held for the participant.
type RemoteSink interface {
	Attach(remote domain.ParticipantID, track *webrtc.TrackRemote)
	Detach(remote domain.ParticipantID)
	Update(remote domain.ParticipantID, st RemoteState)
}

type discardSink struct{}

func (discardSink) Attach(domain.ParticipantID, *webrtc.TrackRemote) {}
func (discardSink) Detach(domain.ParticipantID)                      {}
func (discardSink) Update(domain.ParticipantID, RemoteState)         {}

type noTracks struct{}

func (noTracks) Tracks() []core.LocalTrack { return nil }

type Options struct {
	Factory core.MediaConnectionFactory
	Signal  Signaler
	Tracks  TrackSource
	Notify  Notifier
	Sink    RemoteSink
	Log     zerolog.Logger
}

// LinkInfo is a read-only view of one link.
type LinkInfo struct {
	Participant domain.ParticipantID
	Role        Role
	State       State
	Media       RemoteState
}

// Orchestrator keeps one Link per remote participant of the current room.
// Events are expected from a single goroutine (see Run); connection
// callbacks arrive concurrently and only touch the link they belong to.
type Orchestrator struct {
	factory core.MediaConnectionFactory
	signal  Signaler
	tracks  TrackSource
	notify  Notifier
	sink    RemoteSink
	log     zerolog.Logger

	mu      sync.Mutex
	conn    domain.ConnID
	room    domain.RoomID
	want    domain.ParticipantID
	name    string
	self    domain.ParticipantID
	links   map[domain.ParticipantID]*Link
	pending map[domain.ParticipantID][]webrtc.ICECandidateInit
	remote  map[domain.ParticipantID]RemoteState
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		factory: opts.Factory,
		signal:  opts.Signal,
		tracks:  opts.Tracks,
		notify:  opts.Notify,
		sink:    opts.Sink,
		log:     opts.Log.With().Str("module", "peer.orchestrator").Logger(),
		links:   make(map[domain.ParticipantID]*Link),
		pending: make(map[domain.ParticipantID][]webrtc.ICECandidateInit),
		remote:  make(map[domain.ParticipantID]RemoteState),
	}
	if o.tracks == nil {
		o.tracks = noTracks{}
	}
	if o.notify == nil {
		o.notify = discardNotifier{}
	}
	if o.sink == nil {
		o.sink = discardSink{}
	}
	return o
}

// Run feeds events to Handle until the channel closes or ctx is done.
func (o *Orchestrator) Run(ctx context.Context, events <-chan protocol.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.Handle(ev)
		}
	}
}

func (o *Orchestrator) Handle(ev protocol.Event) {
	switch m := ev.(type) {
	case protocol.Welcome:
		o.onWelcome(m.Conn)
	case protocol.Joined:
		o.onJoined(m)
	case protocol.Arrived:
		o.OnArrived(m.Participant)
	case protocol.Departed:
		o.OnDeparted(m.Participant)
	case protocol.RemoteOffer:
		o.OnOffer(m.Sender, m.SDP, m.ICERestart)
	case protocol.RemoteAnswer:
		o.OnAnswer(m.Sender, m.SDP)
	case protocol.RemoteCandidate:
		o.OnCandidate(m.Sender, m.Candidate)
	case protocol.RemoteAudioState:
		o.updateRemote(m.Sender, func(st *RemoteState) { st.AudioEnabled = m.Enabled })
	case protocol.RemoteScreenShare:
		o.updateRemote(m.Sender, func(st *RemoteState) { st.ScreenSharing = m.Enabled })
	case protocol.ServerError:
		o.log.Warn().Str("message", m.Text).Msg("server error")
		o.notify.Notify(noticeFor(opError("signal", "", ErrServerRejected, nil), m.Text))
	case protocol.Pong:
	default:
		o.log.Debug().Str("type", string(ev.Kind())).Msg("unhandled event")
	}
}

// Join asks to enter room. The request is repeated after every reconnect
// until Leave. An empty pid lets the server use the connection id.
func (o *Orchestrator) Join(room domain.RoomID, pid domain.ParticipantID, name string) error {
	if err := room.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	switching := o.room != "" && o.room != room
	o.room, o.want, o.name = room, pid, name
	o.mu.Unlock()

	if switching {
		o.closeAll()
	}
	o.sendJoin()
	return nil
}

// Leave exits the current room and closes every link.
func (o *Orchestrator) Leave() {
	o.mu.Lock()
	wasIn := o.room != ""
	o.room, o.self = "", ""
	o.mu.Unlock()

	if wasIn {
		o.send(protocol.Leave{})
	}
	o.closeAll()
}

// Close releases every link without telling the server.
func (o *Orchestrator) Close() {
	o.closeAll()
}

func (o *Orchestrator) Room() domain.RoomID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.room
}

func (o *Orchestrator) Self() domain.ParticipantID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.self
}

// Links returns a snapshot ordered by participant id.
func (o *Orchestrator) Links() []LinkInfo {
	o.mu.Lock()
	out := make([]LinkInfo, 0, len(o.links))
	links := make([]*Link, 0, len(o.links))
	for pid, l := range o.links {
		out = append(out, LinkInfo{Participant: pid, Role: l.role, Media: o.remote[pid]})
		links = append(links, l)
	}
	o.mu.Unlock()

	for i, l := range links {
		out[i].State = l.State()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out
}

func (o *Orchestrator) link(remote domain.ParticipantID) *Link {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.links[remote]
}

func (o *Orchestrator) onWelcome(id domain.ConnID) {
	o.mu.Lock()
	o.conn = id
	rejoin := o.room != ""
	o.mu.Unlock()

	o.log.Info().Str("conn", string(id)).Bool("rejoin", rejoin).Msg("connected to signaling")
	if rejoin {
		// The server dropped our membership with the old connection and the
		// others closed their links to us.
		o.closeAll()
		o.sendJoin()
	}
}

func (o *Orchestrator) onJoined(m protocol.Joined) {
	o.mu.Lock()
	o.room, o.self = m.Room, m.Participant
	o.mu.Unlock()
	o.log.Info().
		Str("room", string(m.Room)).
		Str("participant", string(m.Participant)).
		Int("members", len(m.Members)).
		Msg("joined")
}

func (o *Orchestrator) sendJoin() {
	o.mu.Lock()
	req := protocol.Join{Room: o.room, Participant: o.want, DisplayName: o.name}
	o.mu.Unlock()
	if req.Room == "" {
		return
	}
	o.send(req)
}

// OnArrived opens an initiator link to a newcomer and sends it an offer.
func (o *Orchestrator) OnArrived(remote domain.ParticipantID) {
	if remote == o.Self() {
		return
	}
	link, err := o.newLink(remote, Initiator)
	if err != nil {
		return
	}
	link.move(StateOffering)
	offer, err := link.conn.CreateOffer(false)
	if err != nil {
		o.fail(link, "create offer", err)
		return
	}
	if !o.isCurrent(link) {
		return
	}
	link.move(StateNegotiating)
	o.send(protocol.Offer{Target: remote, SDP: offer})
}

// OnOffer answers an offer. A fresh offer supersedes any existing link; an
// ICE restart offer renegotiates the existing one in place.
func (o *Orchestrator) OnOffer(sender domain.ParticipantID, sdp webrtc.SessionDescription, iceRestart bool) {
	if existing := o.link(sender); iceRestart && existing != nil && !existing.closed() {
		o.answerRestart(existing, sdp)
		return
	}

	link, err := o.newLink(sender, Responder)
	if err != nil {
		return
	}
	link.move(StateAnswering)
	if err := link.applyRemote(sdp); err != nil {
		o.fail(link, "apply offer", err)
		return
	}
	answer, err := link.conn.CreateAnswer()
	if err != nil {
		o.fail(link, "create answer", err)
		return
	}
	if !o.isCurrent(link) {
		return
	}
	link.move(StateNegotiating)
	o.send(protocol.Answer{Target: sender, SDP: answer})
}

func (o *Orchestrator) answerRestart(link *Link, sdp webrtc.SessionDescription) {
	if !link.beginRestart() {
		link.move(StateRecovering)
	}
	if err := link.applyRemote(sdp); err != nil {
		o.fail(link, "apply restart offer", err)
		return
	}
	answer, err := link.conn.CreateAnswer()
	if err != nil {
		o.fail(link, "create restart answer", err)
		return
	}
	if !o.isCurrent(link) {
		return
	}
	o.send(protocol.Answer{Target: link.remote, SDP: answer})
}

func (o *Orchestrator) OnAnswer(sender domain.ParticipantID, sdp webrtc.SessionDescription) {
	link := o.link(sender)
	if link == nil || link.closed() {
		o.log.Debug().Str("remote", string(sender)).Msg("answer for unknown link")
		return
	}
	if err := link.applyRemote(sdp); err != nil {
		o.fail(link, "apply answer", err)
	}
}

// OnCandidate applies or queues a remote candidate. Candidates from a sender
// with no link yet wait for the offer that creates it.
func (o *Orchestrator) OnCandidate(sender domain.ParticipantID, c webrtc.ICECandidateInit) {
	o.mu.Lock()
	link := o.links[sender]
	if link == nil {
		queued, known := o.pending[sender]
		switch {
		case !known && len(o.pending) >= maxPendingSenders:
			o.log.Debug().Str("remote", string(sender)).Msg("pending buffer full")
		case len(queued) >= maxQueuedCandidates:
			o.log.Debug().Str("remote", string(sender)).Msg("pending candidates full")
		default:
			o.pending[sender] = append(queued, c)
		}
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	link.addCandidate(c)
}

func (o *Orchestrator) OnDeparted(remote domain.ParticipantID) {
	o.mu.Lock()
	link := o.links[remote]
	delete(o.links, remote)
	delete(o.pending, remote)
	delete(o.remote, remote)
	o.mu.Unlock()

	if link != nil {
		link.close()
		o.sink.Detach(remote)
		o.log.Info().Str("remote", string(remote)).Msg("link closed, participant departed")
	}
}

// Substitute swaps the outgoing track of the given kind on every live link.
// It returns how many links failed; failures do not stop the batch.
func (o *Orchestrator) Substitute(kind webrtc.RTPCodecType, track core.LocalTrack) int {
	o.mu.Lock()
	links := make([]*Link, 0, len(o.links))
	for _, l := range o.links {
		links = append(links, l)
	}
	o.mu.Unlock()

	failed := 0
	for _, l := range links {
		if l.closed() {
			continue
		}
		s := l.sender(kind)
		if s == nil {
			continue
		}
		if err := s.ReplaceTrack(track); err != nil {
			failed++
			e := opError("replace track", l.remote, ErrTrackSubstitution, err)
			o.log.Warn().Err(e).Str("remote", string(l.remote)).Msg("substitution failed")
		}
	}
	return failed
}

// newLink creates and registers a link, closing any link it supersedes.
func (o *Orchestrator) newLink(remote domain.ParticipantID, role Role) (*Link, error) {
	conn, err := o.factory.NewConnection()
	if err != nil {
		e := opError("open connection", remote, ErrLinkNegotiation, err)
		o.log.Error().Err(e).Str("remote", string(remote)).Msg("link not created")
		o.notify.Notify(noticeFor(e, "Could not connect to "+string(remote)))
		return nil, e
	}
	link := newLink(remote, role, conn, o.log)

	o.mu.Lock()
	old := o.links[remote]
	o.links[remote] = link
	link.queue = o.pending[remote]
	delete(o.pending, remote)
	o.mu.Unlock()

	if old != nil {
		old.close()
		o.sink.Detach(remote)
		o.log.Info().Str("remote", string(remote)).Msg("link superseded")
	}

	o.wire(link)
	if err := link.attach(o.tracks.Tracks()); err != nil {
		o.fail(link, "attach tracks", err)
		o.mu.Lock()
		if o.links[remote] == link {
			delete(o.links, remote)
		}
		o.mu.Unlock()
		link.close()
		return nil, err
	}
	return link, nil
}

func (o *Orchestrator) wire(link *Link) {
	link.conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if !o.isCurrent(link) {
			return
		}
		o.send(protocol.Candidate{Target: link.remote, Candidate: c})
	})
	link.conn.OnStateChange(func(s core.ConnState) {
		o.onConnState(link, s)
	})
	link.conn.OnTrack(func(t *webrtc.TrackRemote) {
		if !o.isCurrent(link) {
			return
		}
		o.sink.Attach(link.remote, t)
	})
}

func (o *Orchestrator) onConnState(link *Link, s core.ConnState) {
	if !o.isCurrent(link) {
		return
	}
	switch s {
	case core.ConnConnected:
		if link.move(StateConnected) {
			o.log.Info().Str("remote", string(link.remote)).Msg("link connected")
		}
	case core.ConnDisconnected, core.ConnFailed:
		switch link.State() {
		case StateRecovering:
			// Disconnected is transient while the restart is in flight.
			if s == core.ConnFailed {
				link.move(StateFailed)
				o.surface(link)
			}
		case StateConnected, StateNegotiating:
			link.move(StateFailed)
			if !link.beginRestart() {
				o.surface(link)
				return
			}
			o.log.Info().Str("remote", string(link.remote)).Stringer("conn", s).Msg("link lost, restarting ice")
			if link.role == Initiator {
				o.restart(link)
			}
		}
	}
}

func (o *Orchestrator) restart(link *Link) {
	offer, err := link.conn.CreateOffer(true)
	if err != nil {
		o.fail(link, "create restart offer", err)
		return
	}
	if !o.isCurrent(link) {
		return
	}
	o.send(protocol.Offer{Target: link.remote, SDP: offer, ICERestart: true})
}

// surface reports a link the automatic restart could not save.
func (o *Orchestrator) surface(link *Link) {
	e := opError("connect", link.remote, ErrLinkNegotiation, nil)
	o.log.Warn().Err(e).Str("remote", string(link.remote)).Msg("link failed")
	o.notify.Notify(noticeFor(e, "Connection to "+string(link.remote)+" lost"))
}

func (o *Orchestrator) fail(link *Link, op string, err error) {
	if !o.isCurrent(link) {
		return
	}
	link.move(StateFailed)
	e := opError(op, link.remote, ErrLinkNegotiation, err)
	o.log.Warn().Err(e).Str("remote", string(link.remote)).Msg("negotiation step failed")
	o.notify.Notify(noticeFor(e, "Could not connect to "+string(link.remote)))
}

func (o *Orchestrator) isCurrent(link *Link) bool {
	o.mu.Lock()
	cur := o.links[link.remote] == link
	o.mu.Unlock()
	return cur && !link.closed()
}

func (o *Orchestrator) updateRemote(sender domain.ParticipantID, apply func(*RemoteState)) {
	o.mu.Lock()
	st := o.remote[sender]
	apply(&st)
	o.remote[sender] = st
	o.mu.Unlock()
	o.sink.Update(sender, st)
}

func (o *Orchestrator) closeAll() {
	o.mu.Lock()
	links := o.links
	o.links = make(map[domain.ParticipantID]*Link)
	o.pending = make(map[domain.ParticipantID][]webrtc.ICECandidateInit)
	o.remote = make(map[domain.ParticipantID]RemoteState)
	o.mu.Unlock()

	for pid, l := range links {
		l.close()
		o.sink.Detach(pid)
	}
}

func (o *Orchestrator) send(req protocol.Request) {
	if err := o.signal.Send(req); err != nil {
		o.log.Debug().Err(err).Str("type", string(req.Kind())).Msg("signal not sent")
	}
}
