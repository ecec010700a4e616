package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func newRouter(t *testing.T) (*gin.Engine, *app.Relay) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		PingPeriod: time.Second,
		PongWait:   2 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 4,
	}
	relay := app.NewRelay(app.NewDirectory(), nil, metrics.New())
	return SetupRouter(context.Background(), cfg, relay, metrics.New()), relay
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndMetrics(t *testing.T) {
	r, _ := newRouter(t)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)

	rec := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meet_rooms_active")
}

func TestClientTokenCookie(t *testing.T) {
	r, _ := newRouter(t)
	rec := do(r, http.MethodGet, "/healthz", "")
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionName, cookies[0].Name)
}

func TestNewRoom(t *testing.T) {
	r, _ := newRouter(t)
	rec := do(r, http.MethodGet, "/api/rooms/new", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NoError(t, resp.ID.Validate())
	assert.Equal(t, "/room/"+string(resp.ID), resp.Path)
}

func TestJoinCode(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodPost, "/api/rooms/join", `{"code":"abcd-1234"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/room/abcd-1234"`)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/rooms/join", `{"code":"NOPE"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/rooms/join", `{}`).Code)
}

func TestGetRoom(t *testing.T) {
	r, relay := newRouter(t)
	dir := relay.Directory()
	dir.Connect("c1", "", nopConn{})
	_, err := dir.Join("c1", "team-sync", "alice")
	require.NoError(t, err)

	rec := do(r, http.MethodGet, "/api/rooms/team-sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info domain.RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, []domain.ParticipantID{"alice"}, info.Participants)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/rooms/empty-room", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/rooms/Bad_Room", "").Code)

	rec = do(r, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "team-sync")
}
