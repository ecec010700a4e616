package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
)

type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	mu      sync.Mutex
	enabled bool
	once    sync.Once
	ended   chan struct{}
}

func newFakeTrack(id string, kind webrtc.RTPCodecType) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true, ended: make(chan struct{})}
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) Ended() <-chan struct{}    { return t.ended }
func (t *fakeTrack) Stop()                     { t.once.Do(func() { close(t.ended) }) }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *fakeTrack) stopped() bool {
	select {
	case <-t.ended:
		return true
	default:
		return false
	}
}

type fakeSender struct {
	mu       sync.Mutex
	current  core.LocalTrack
	replaced []core.LocalTrack
	err      error
}

func (s *fakeSender) ReplaceTrack(t core.LocalTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.current = t
	s.replaced = append(s.replaced, t)
	return nil
}

func (s *fakeSender) track() core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

type fakeConn struct {
	mu       sync.Mutex
	ops      []string
	senders  map[webrtc.RTPCodecType]*fakeSender
	offers   int
	restarts int
	closed   bool

	offerErr  error
	answerErr error
	trackErr  error

	onICE   func(webrtc.ICECandidateInit)
	onState func(core.ConnState)
	onTrack func(*webrtc.TrackRemote)
}

func newFakeConn() *fakeConn {
	return &fakeConn{senders: make(map[webrtc.RTPCodecType]*fakeSender)}
}

func (c *fakeConn) record(op string) {
	c.mu.Lock()
	c.ops = append(c.ops, op)
	c.mu.Unlock()
}

func (c *fakeConn) AddTrack(t core.LocalTrack) (core.TrackSender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trackErr != nil {
		return nil, c.trackErr
	}
	s := &fakeSender{current: t}
	c.senders[t.Kind()] = s
	c.ops = append(c.ops, "track:"+t.Kind().String())
	return s, nil
}

func (c *fakeConn) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offerErr != nil {
		return webrtc.SessionDescription{}, c.offerErr
	}
	c.offers++
	if iceRestart {
		c.restarts++
	}
	c.ops = append(c.ops, "offer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", c.offers)}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answerErr != nil {
		return webrtc.SessionDescription{}, c.answerErr
	}
	c.ops = append(c.ops, "answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (c *fakeConn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	c.record("remote:" + sd.Type.String())
	return nil
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.record("candidate:" + ci.Candidate)
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnStateChange(fn func(core.ConnState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnTrack(fn func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) emitState(s core.ConnState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	fn(s)
}

func (c *fakeConn) emitCandidate(cand string) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	fn(webrtc.ICECandidateInit{Candidate: cand})
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) history() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func (c *fakeConn) sender(kind webrtc.RTPCodecType) *fakeSender {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.senders[kind]
}

type fakeFactory struct {
	mu       sync.Mutex
	conns    []*fakeConn
	err      error
	offerErr error
	trackErr error
}

func (f *fakeFactory) NewConnection() (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeConn()
	c.offerErr = f.offerErr
	c.trackErr = f.trackErr
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

type fakeSignal struct {
	mu   sync.Mutex
	sent []protocol.Request
}

func (s *fakeSignal) Send(req protocol.Request) error {
	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()
	return nil
}

func (s *fakeSignal) all() []protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Request(nil), s.sent...)
}

func (s *fakeSignal) reset() {
	s.mu.Lock()
	s.sent = nil
	s.mu.Unlock()
}

func sentOf[T protocol.Request](s *fakeSignal) []T {
	var out []T
	for _, r := range s.all() {
		if v, ok := r.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) Notify(x Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, x)
	n.mu.Unlock()
}

func (n *noticeLog) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

type fakeSink struct {
	mu       sync.Mutex
	detached []domain.ParticipantID
	states   map[domain.ParticipantID]RemoteState
}

func newFakeSink() *fakeSink {
	return &fakeSink{states: make(map[domain.ParticipantID]RemoteState)}
}

func (s *fakeSink) Attach(domain.ParticipantID, *webrtc.TrackRemote) {}

func (s *fakeSink) Detach(p domain.ParticipantID) {
	s.mu.Lock()
	s.detached = append(s.detached, p)
	s.mu.Unlock()
}

func (s *fakeSink) Update(p domain.ParticipantID, st RemoteState) {
	s.mu.Lock()
	s.states[p] = st
	s.mu.Unlock()
}

var errNoPermission = errors.New("permission denied")

type fakeDevices struct {
	mu       sync.Mutex
	cameras  []core.DeviceInfo
	openErr  error
	opened   []core.Constraints
	screens  []*fakeTrack
	sequence int
}

func (d *fakeDevices) Cameras(context.Context) ([]core.DeviceInfo, error) {
	return d.cameras, nil
}

func (d *fakeDevices) Open(_ context.Context, c core.Constraints) (core.MediaSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return core.MediaSource{}, d.openErr
	}
	d.opened = append(d.opened, c)
	d.sequence++
	var src core.MediaSource
	if c.Video {
		src.Video = newFakeTrack(fmt.Sprintf("video-%d", d.sequence), webrtc.RTPCodecTypeVideo)
	}
	if c.Audio {
		src.Audio = newFakeTrack(fmt.Sprintf("audio-%d", d.sequence), webrtc.RTPCodecTypeAudio)
	}
	return src, nil
}

func (d *fakeDevices) OpenScreen(context.Context) (core.LocalTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.sequence++
	s := newFakeTrack(fmt.Sprintf("screen-%d", d.sequence), webrtc.RTPCodecTypeVideo)
	d.screens = append(d.screens, s)
	return s, nil
}

func (d *fakeDevices) lastOpen() core.Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[len(d.opened)-1]
}

func (d *fakeDevices) fail(err error) {
	d.mu.Lock()
	d.openErr = err
	d.mu.Unlock()
}
