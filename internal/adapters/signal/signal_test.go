package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
)

func testConfig() *config.Config {
	return &config.Config{
		ReadLimit:  32768,
		PingPeriod: time.Second,
		PongWait:   2 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 16,
	}
}

func startServer(t *testing.T, cfg *config.Config) (string, *app.Relay) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	relay := app.NewRelay(app.NewDirectory(), nil, metrics.New())
	ctl := NewSignalWSController(relay, cfg, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", relay
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
	id   domain.ConnID
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	c := &client{t: t, conn: ws}
	welcome, ok := c.next().(protocol.Welcome)
	require.True(t, ok)
	c.id = welcome.Conn
	return c
}

func (c *client) send(req protocol.Request) {
	c.t.Helper()
	b, err := protocol.Encode(req)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, b))
}

func (c *client) next() protocol.Event {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	ev, err := protocol.DecodeEvent(data)
	require.NoError(c.t, err)
	return ev
}

func TestSignalJoinArriveDepart(t *testing.T) {
	url, relay := startServer(t, testConfig())
	a := dial(t, url)
	b := dial(t, url)
	assert.NotEqual(t, a.id, b.id)

	a.send(protocol.Join{Room: "room-x", Participant: "A"})
	joined, ok := a.next().(protocol.Joined)
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("room-x"), joined.Room)

	b.send(protocol.Join{Room: "room-x"})
	joinedB, ok := b.next().(protocol.Joined)
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID(b.id), joinedB.Participant, "participant id defaults to the connection id")

	arrived, ok := a.next().(protocol.Arrived)
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID(b.id), arrived.Participant)

	b.send(protocol.Offer{Target: "A", SDP: webrtcOffer()})
	offer, ok := a.next().(protocol.RemoteOffer)
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID(b.id), offer.Sender)

	require.NoError(t, b.conn.Close())
	departed, ok := a.next().(protocol.Departed)
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID(b.id), departed.Participant)
	assert.Eventually(t, func() bool {
		return len(relay.Directory().MembersOf("room-x")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalIgnoresMalformedFrames(t *testing.T) {
	url, _ := startServer(t, testConfig())
	a := dial(t, url)

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))
	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	a.send(protocol.Ping{})
	_, ok := a.next().(protocol.Pong)
	assert.True(t, ok)
}

func TestSignalJoinThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.JoinRateLimit = 1
	cfg.JoinRateInterval = time.Minute
	url, _ := startServer(t, cfg)
	a := dial(t, url)

	a.send(protocol.Join{Room: "r1"})
	_, ok := a.next().(protocol.Joined)
	require.True(t, ok)

	a.send(protocol.Join{Room: "r2"})
	serverErr, ok := a.next().(protocol.ServerError)
	require.True(t, ok)
	assert.Equal(t, app.MsgTooManyJoins, serverErr.Text)
}

func TestSignalRejectsForeignOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://meet.example"}
	url, _ := startServer(t, cfg)

	h := http.Header{}
	h.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, h)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	h.Set("Origin", "https://meet.example")
	ws, _, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err)
	_ = ws.Close()
}

func TestOriginChecker(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, OriginChecker(nil)(req))

	check := OriginChecker([]string{"https://a"})
	assert.True(t, check(req), "no origin header")
	req.Header.Set("Origin", "https://b")
	assert.False(t, check(req))
	req.Header.Set("Origin", "https://a")
	assert.True(t, check(req))
}

func webrtcOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
}
