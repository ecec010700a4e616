package app

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
)

type relayHarness struct {
	relay   *Relay
	metrics *metrics.Metrics
	conns   map[domain.ConnID]*fakeConn
}

func newHarness(policy Policy) *relayHarness {
	m := metrics.New()
	return &relayHarness{
		relay:   NewRelay(NewDirectory(), policy, m),
		metrics: m,
		conns:   make(map[domain.ConnID]*fakeConn),
	}
}

func (h *relayHarness) connect(t *testing.T, id domain.ConnID) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	h.conns[id] = c
	h.relay.Connect(id, "", c)
	welcome := ofKind[protocol.Welcome](c.drain(t))
	require.Len(t, welcome, 1)
	assert.Equal(t, id, welcome[0].Conn)
	return c
}

func (h *relayHarness) join(t *testing.T, id domain.ConnID, room domain.RoomID, pid domain.ParticipantID) {
	t.Helper()
	h.relay.Handle(id, protocol.Join{Room: room, Participant: pid})
}

func (h *relayHarness) drainAll(t *testing.T) {
	for _, c := range h.conns {
		c.drain(t)
	}
}

var offerSDP = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
var answerSDP = webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}

func TestRelayJoinNotifiesOthersOnly(t *testing.T) {
	h := newHarness(nil)
	a := h.connect(t, "ca")
	b := h.connect(t, "cb")

	h.join(t, "ca", "room-1", "A")
	joined := ofKind[protocol.Joined](a.drain(t))
	require.Len(t, joined, 1)
	assert.Equal(t, []domain.ParticipantID{"A"}, joined[0].Members)

	h.join(t, "cb", "room-1", "B")

	evA := a.drain(t)
	arrived := ofKind[protocol.Arrived](evA)
	require.Len(t, arrived, 1, "A receives exactly one arrived(B)")
	assert.Equal(t, domain.ParticipantID("B"), arrived[0].Participant)

	evB := b.drain(t)
	assert.Empty(t, ofKind[protocol.Arrived](evB), "newcomer is not told about existing members")
	joinedB := ofKind[protocol.Joined](evB)
	require.Len(t, joinedB, 1)
	assert.ElementsMatch(t, []domain.ParticipantID{"A", "B"}, joinedB[0].Members)
}

func TestRelayInvalidRoom(t *testing.T) {
	h := newHarness(nil)
	a := h.connect(t, "ca")

	h.relay.Handle("ca", protocol.Join{Room: "Bad Room!", Participant: "A", DisplayName: "Mallory"})

	errs := ofKind[protocol.ServerError](a.drain(t))
	require.Len(t, errs, 1)
	assert.Equal(t, MsgInvalidRoom, errs[0].Text)
	assert.Empty(t, h.relay.Directory().List())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.JoinRejected.WithLabelValues(metrics.RejectInvalidRoom)))

	p, ok := h.relay.Directory().Participant("ca")
	require.True(t, ok)
	assert.Empty(t, p.DisplayName)
	assert.False(t, p.InRoom())
}

func TestRelayParticipantTaken(t *testing.T) {
	h := newHarness(nil)
	h.connect(t, "ca")
	b := h.connect(t, "cb")
	h.relay.Handle("cb", protocol.Join{Room: "r", Participant: "first", DisplayName: "Bob"})
	h.join(t, "ca", "r", "dup")
	b.drain(t)

	h.relay.Handle("cb", protocol.Join{Room: "r", Participant: "dup", DisplayName: "Mallory"})

	errs := ofKind[protocol.ServerError](b.drain(t))
	require.Len(t, errs, 1)
	assert.Equal(t, MsgParticipantTaken, errs[0].Text)
	assert.Equal(t, []domain.ParticipantID{"dup", "first"}, h.relay.Directory().MembersOf("r"))

	p, ok := h.relay.Directory().Participant("cb")
	require.True(t, ok)
	assert.Equal(t, "Bob", p.DisplayName)
	assert.Equal(t, domain.ParticipantID("first"), p.ID)
}

func TestRelayPointToPoint(t *testing.T) {
	h := newHarness(nil)
	a := h.connect(t, "ca")
	b := h.connect(t, "cb")
	c := h.connect(t, "cc")
	h.join(t, "ca", "r", "A")
	h.join(t, "cb", "r", "B")
	h.join(t, "cc", "other", "C")
	h.drainAll(t)

	h.relay.Handle("ca", protocol.Offer{Target: "B", SDP: offerSDP, ICERestart: true})
	offers := ofKind[protocol.RemoteOffer](b.drain(t))
	require.Len(t, offers, 1)
	assert.Equal(t, domain.ParticipantID("A"), offers[0].Sender)
	assert.True(t, offers[0].ICERestart)
	assert.Empty(t, a.drain(t))

	// Foreign and stale targets are dropped without telling the sender.
	h.relay.Handle("ca", protocol.Offer{Target: "C", SDP: offerSDP})
	h.relay.Handle("ca", protocol.Answer{Target: "gone", SDP: answerSDP})
	h.relay.Handle("ca", protocol.Candidate{Target: "A", Candidate: webrtc.ICECandidateInit{Candidate: "self"}})
	assert.Empty(t, a.drain(t))
	assert.Empty(t, b.drain(t))
	assert.Empty(t, c.drain(t))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.SignalsDropped.WithLabelValues(metrics.ReasonUnknownTarget)))

	h.relay.Handle("cb", protocol.Candidate{Target: "A", Candidate: webrtc.ICECandidateInit{Candidate: "cand"}})
	cands := ofKind[protocol.RemoteCandidate](a.drain(t))
	require.Len(t, cands, 1)
	assert.Equal(t, domain.ParticipantID("B"), cands[0].Sender)
	assert.Equal(t, "cand", cands[0].Candidate.Candidate)
}

func TestRelayDropsWithoutRoom(t *testing.T) {
	h := newHarness(nil)
	a := h.connect(t, "ca")
	b := h.connect(t, "cb")
	h.join(t, "cb", "r", "B")
	h.drainAll(t)

	h.relay.Handle("ca", protocol.Offer{Target: "B", SDP: offerSDP})
	h.relay.Handle("ca", protocol.AudioState{Enabled: false})
	h.relay.Handle("ca", protocol.Leave{})
	assert.Empty(t, a.drain(t))
	assert.Empty(t, b.drain(t))
}

func TestRelayStateBroadcast(t *testing.T) {
	h := newHarness(nil)
	a := h.connect(t, "ca")
	b := h.connect(t, "cb")
	c := h.connect(t, "cc")
	h.join(t, "ca", "r", "A")
	h.join(t, "cb", "r", "B")
	h.join(t, "cc", "r", "C")
	h.drainAll(t)

	h.relay.Handle("ca", protocol.AudioState{Room: "r", Enabled: false})
	h.relay.Handle("ca", protocol.ScreenShare{Enabled: true})
	assert.Empty(t, a.drain(t))
	for _, conn := range []*fakeConn{b, c} {
		evs := conn.drain(t)
		audio := ofKind[protocol.RemoteAudioState](evs)
		screen := ofKind[protocol.RemoteScreenShare](evs)
		require.Len(t, audio, 1)
		require.Len(t, screen, 1)
		assert.Equal(t, domain.ParticipantID("A"), audio[0].Sender)
		assert.False(t, audio[0].Enabled)
		assert.True(t, screen[0].Enabled)
	}

	h.relay.Handle("ca", protocol.AudioState{Room: "some-other-room", Enabled: true})
	assert.Empty(t, b.drain(t))
}

func TestRelayLeaveTwice(t *testing.T) {
	h := newHarness(nil)
	h.connect(t, "ca")
	b := h.connect(t, "cb")
	h.join(t, "ca", "r", "A")
	h.join(t, "cb", "r", "B")
	h.drainAll(t)

	h.relay.Handle("ca", protocol.Leave{})
	h.relay.Handle("ca", protocol.Leave{})

	departed := ofKind[protocol.Departed](b.drain(t))
	require.Len(t, departed, 1)
	assert.Equal(t, domain.ParticipantID("A"), departed[0].Participant)
	assert.Equal(t, []domain.ParticipantID{"B"}, h.relay.Directory().MembersOf("r"))
}

func TestRelayJoinOtherRoomAnnouncesDeparture(t *testing.T) {
	h := newHarness(nil)
	h.connect(t, "ca")
	b := h.connect(t, "cb")
	c := h.connect(t, "cc")
	h.join(t, "ca", "old", "A")
	h.join(t, "cb", "old", "B")
	h.join(t, "cc", "new", "C")
	h.drainAll(t)

	h.join(t, "ca", "new", "A")

	assert.Len(t, ofKind[protocol.Departed](b.drain(t)), 1)
	assert.Len(t, ofKind[protocol.Arrived](c.drain(t)), 1)
}

func TestRelayBackpressurePolicies(t *testing.T) {
	t.Run("drop", func(t *testing.T) {
		h := newHarness(SimplePolicy{Action: DropMessage})
		h.connect(t, "ca")
		b := h.connect(t, "cb")
		h.join(t, "ca", "r", "A")
		h.join(t, "cb", "r", "B")
		b.setFull(true)

		h.relay.Handle("ca", protocol.Offer{Target: "B", SDP: offerSDP})
		assert.False(t, b.isClosed())
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SignalsDropped.WithLabelValues(metrics.ReasonBackpressure)))
	})
	t.Run("kick", func(t *testing.T) {
		h := newHarness(SimplePolicy{Action: KickMember})
		h.connect(t, "ca")
		b := h.connect(t, "cb")
		h.join(t, "ca", "r", "A")
		h.join(t, "cb", "r", "B")
		b.setFull(true)

		h.relay.Handle("ca", protocol.Offer{Target: "B", SDP: offerSDP})
		assert.True(t, b.isClosed())
	})
}

func TestRelayPing(t *testing.T) {
	h := newHarness(nil)
	a := h.connect(t, "ca")
	h.relay.Handle("ca", protocol.Ping{})
	assert.Len(t, ofKind[protocol.Pong](a.drain(t)), 1)

	h.relay.Handle("nobody", protocol.Ping{})
	assert.Empty(t, a.drain(t))
}

// Three participants build a mesh, then one disconnects.
func TestRelayMeshScenario(t *testing.T) {
	const room domain.RoomID = "ab12-cd34-ef56"
	h := newHarness(nil)
	p1 := h.connect(t, "c1")
	p2 := h.connect(t, "c2")
	p3 := h.connect(t, "c3")
	h.join(t, "c1", room, "P1")
	h.join(t, "c2", room, "P2")
	h.drainAll(t)

	h.join(t, "c3", room, "P3")
	for _, c := range []*fakeConn{p1, p2} {
		arrived := ofKind[protocol.Arrived](c.drain(t))
		require.Len(t, arrived, 1)
		assert.Equal(t, domain.ParticipantID("P3"), arrived[0].Participant)
	}
	assert.Equal(t, []domain.ParticipantID{"P1", "P2", "P3"}, h.relay.Directory().MembersOf(room))
	p3.drain(t)

	// Existing members initiate.
	h.relay.Handle("c1", protocol.Offer{Target: "P3", SDP: offerSDP})
	h.relay.Handle("c2", protocol.Offer{Target: "P3", SDP: offerSDP})
	offers := ofKind[protocol.RemoteOffer](p3.drain(t))
	require.Len(t, offers, 2)
	senders := []domain.ParticipantID{offers[0].Sender, offers[1].Sender}
	assert.ElementsMatch(t, []domain.ParticipantID{"P1", "P2"}, senders)

	for _, s := range senders {
		h.relay.Handle("c3", protocol.Answer{Target: s, SDP: answerSDP})
	}
	for _, c := range []*fakeConn{p1, p2} {
		answers := ofKind[protocol.RemoteAnswer](c.drain(t))
		require.Len(t, answers, 1)
		assert.Equal(t, domain.ParticipantID("P3"), answers[0].Sender)
	}

	h.relay.Disconnect("c1")
	for _, c := range []*fakeConn{p2, p3} {
		departed := ofKind[protocol.Departed](c.drain(t))
		require.Len(t, departed, 1)
		assert.Equal(t, domain.ParticipantID("P1"), departed[0].Participant)
	}
	assert.Equal(t, []domain.ParticipantID{"P2", "P3"}, h.relay.Directory().MembersOf(room))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.ParticipantsActive))
}
