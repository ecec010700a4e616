package peer

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
)

// Links is the part of the orchestrator the media controller drives.
type Links interface {
	Substitute(kind webrtc.RTPCodecType, track core.LocalTrack) int
	Room() domain.RoomID
}

type Source int

const (
	SourceNone Source = iota
	SourceCamera
	SourceScreen
)

func (s Source) String() string {
	switch s {
	case SourceCamera:
		return "camera"
	case SourceScreen:
		return "screen"
	}
	return "none"
}

// Preference selects the first camera. DeviceID wins over Facing when the
// device is listed.
type Preference struct {
	DeviceID string
	Facing   core.FacingMode
}

type LocalMediaState struct {
	Source       Source
	AudioEnabled bool
	VideoEnabled bool
	// DeviceIndex is -1 when the camera is chosen by facing mode.
	DeviceIndex int
	DeviceID    string
	Facing      core.FacingMode
}

// Controller owns the local capture tracks. It is the only writer of which
// source feeds the outgoing video slot of every link.
type Controller struct {
	devices core.MediaDevices
	signal  Signaler
	notify  Notifier
	log     zerolog.Logger

	mu          sync.Mutex
	links       Links
	cameras     []core.DeviceInfo
	audio       core.LocalTrack
	camera      core.LocalTrack
	screen      core.LocalTrack
	retired     []core.LocalTrack
	deviceIndex int
	facing      core.FacingMode

	done     chan struct{}
	doneOnce sync.Once
}

func NewController(devices core.MediaDevices, signal Signaler, notify Notifier, log zerolog.Logger) *Controller {
	if notify == nil {
		notify = discardNotifier{}
	}
	return &Controller{
		devices:     devices,
		signal:      signal,
		notify:      notify,
		log:         log.With().Str("module", "peer.media").Logger(),
		deviceIndex: -1,
		facing:      core.FacingUser,
		done:        make(chan struct{}),
	}
}

// Bind connects the controller to the links it substitutes tracks on.
func (c *Controller) Bind(links Links) {
	c.mu.Lock()
	c.links = links
	c.mu.Unlock()
}

// Tracks returns the microphone and whichever video source is live.
func (c *Controller) Tracks() []core.LocalTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.LocalTrack
	if c.audio != nil {
		out = append(out, c.audio)
	}
	if v := c.videoLocked(); v != nil {
		out = append(out, v)
	}
	return out
}

func (c *Controller) videoLocked() core.LocalTrack {
	if c.screen != nil {
		return c.screen
	}
	return c.camera
}

// Acquire opens camera and microphone. A second call returns the state of
// the tracks already held.
func (c *Controller) Acquire(ctx context.Context, pref Preference) (LocalMediaState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio != nil || c.camera != nil {
		return c.stateLocked(), nil
	}

	cams, err := c.devices.Cameras(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("camera enumeration unavailable")
		cams = nil
	}

	cons := core.Constraints{Audio: true, Video: true}
	idx, facing := -1, pref.Facing
	if facing == "" {
		facing = core.FacingUser
	}
	if len(cams) > 1 || pref.DeviceID != "" {
		idx = indexOf(cams, pref.DeviceID)
	}
	if idx >= 0 {
		cons.DeviceID = cams[idx].ID
	} else {
		cons.Facing = facing
	}

	src, err := c.devices.Open(ctx, cons)
	if err != nil {
		return LocalMediaState{}, c.acquisitionFailed("acquire", err)
	}
	c.cameras = cams
	c.audio, c.camera = src.Audio, src.Video
	c.deviceIndex, c.facing = idx, facing

	st := c.stateLocked()
	c.log.Info().
		Stringer("source", st.Source).
		Str("device", st.DeviceID).
		Str("facing", string(st.Facing)).
		Int("cameras", len(cams)).
		Msg("local media acquired")
	return st, nil
}

// indexOf finds id in cams, falling back to the first listed camera.
func indexOf(cams []core.DeviceInfo, id string) int {
	for i, d := range cams {
		if d.ID == id {
			return i
		}
	}
	if len(cams) > 0 {
		return 0
	}
	return -1
}

func (c *Controller) State() LocalMediaState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() LocalMediaState {
	st := LocalMediaState{DeviceIndex: c.deviceIndex, Facing: c.facing}
	switch {
	case c.screen != nil:
		st.Source = SourceScreen
	case c.camera != nil:
		st.Source = SourceCamera
	}
	if c.audio != nil {
		st.AudioEnabled = c.audio.Enabled()
	}
	if c.camera != nil {
		st.VideoEnabled = c.camera.Enabled()
	}
	if c.deviceIndex >= 0 && c.deviceIndex < len(c.cameras) {
		st.DeviceID = c.cameras[c.deviceIndex].ID
	}
	return st
}

// ToggleAudio flips the microphone in place and tells the room.
func (c *Controller) ToggleAudio() (bool, error) {
	c.mu.Lock()
	a, links := c.audio, c.links
	c.mu.Unlock()
	if a == nil {
		return false, ErrNoLocalMedia
	}
	on := !a.Enabled()
	a.SetEnabled(on)
	c.log.Debug().Bool("enabled", on).Msg("audio toggled")

	if links != nil {
		if room := links.Room(); room != "" {
			c.send(protocol.AudioState{Room: room, Enabled: on})
		}
	}
	return on, nil
}

// ToggleVideo flips the camera in place. Nothing is sent.
func (c *Controller) ToggleVideo() (bool, error) {
	c.mu.Lock()
	v := c.camera
	c.mu.Unlock()
	if v == nil {
		return false, ErrNoLocalMedia
	}
	on := !v.Enabled()
	v.SetEnabled(on)
	c.log.Debug().Bool("enabled", on).Msg("video toggled")
	return on, nil
}

// SwitchCamera moves to the next listed camera, or flips facing mode when
// the platform lists at most one. On failure nothing changes.
func (c *Controller) SwitchCamera(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.camera == nil {
		return ErrNoLocalMedia
	}

	cons := core.Constraints{Video: true}
	idx, facing := c.deviceIndex, c.facing
	if len(c.cameras) > 1 {
		idx = (c.deviceIndex + 1) % len(c.cameras)
		cons.DeviceID = c.cameras[idx].ID
	} else {
		facing = c.facing.Toggle()
		cons.Facing = facing
	}

	src, err := c.devices.Open(ctx, cons)
	if err == nil && src.Video == nil {
		err = core.ErrNoDevice
	}
	if err != nil {
		if src.Audio != nil {
			src.Audio.Stop()
		}
		return c.acquisitionFailed("switch camera", err)
	}

	old, next := c.camera, src.Video
	next.SetEnabled(old.Enabled())

	failed := 0
	// While sharing the screen the camera is only held, not sent.
	if c.screen == nil && c.links != nil {
		failed = c.links.Substitute(webrtc.RTPCodecTypeVideo, next)
	}
	c.camera, c.deviceIndex, c.facing = next, idx, facing

	if failed > 0 {
		// Links that kept the old track still read from it.
		c.retired = append(c.retired, old)
		c.log.Warn().Int("failed", failed).Msg("camera switched with partial substitution")
	} else {
		old.Stop()
	}
	c.log.Info().Str("device", cons.DeviceID).Str("facing", string(cons.Facing)).Msg("camera switched")
	return nil
}

// StartScreenShare sends a screen capture instead of the camera. The
// microphone keeps flowing.
func (c *Controller) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != nil {
		return nil
	}
	if c.camera == nil && c.audio == nil {
		return ErrNoLocalMedia
	}
	s, err := c.devices.OpenScreen(ctx)
	if err != nil {
		return c.acquisitionFailed("start screen share", err)
	}
	c.screen = s
	if c.links != nil {
		c.links.Substitute(webrtc.RTPCodecTypeVideo, s)
	}
	c.broadcastScreenLocked(true)
	go c.watchScreen(s)
	c.log.Info().Str("track_id", s.ID()).Msg("screen share started")
	return nil
}

func (c *Controller) StopScreenShare() error {
	return c.stopScreen(nil)
}

// watchScreen runs the stop path when capture ends on its own.
func (c *Controller) watchScreen(s core.LocalTrack) {
	select {
	case <-s.Ended():
		if err := c.stopScreen(s); err != nil {
			c.log.Debug().Err(err).Msg("screen stop")
		}
	case <-c.done:
	}
}

// stopScreen restores the camera. When expect is set only that capture is
// stopped, so a late end of an old share is ignored.
func (c *Controller) stopScreen(expect core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.screen
	if s == nil || (expect != nil && s != expect) {
		return nil
	}
	c.screen = nil
	if c.camera != nil && c.links != nil {
		c.links.Substitute(webrtc.RTPCodecTypeVideo, c.camera)
	}
	s.Stop()
	c.broadcastScreenLocked(false)
	c.log.Info().Msg("screen share stopped")
	return nil
}

func (c *Controller) broadcastScreenLocked(on bool) {
	if c.links == nil {
		return
	}
	if room := c.links.Room(); room != "" {
		c.send(protocol.ScreenShare{Room: room, Enabled: on})
	}
}

// Release stops every local track.
func (c *Controller) Release() {
	c.doneOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range append(c.retired, c.audio, c.camera, c.screen) {
		if t != nil {
			t.Stop()
		}
	}
	c.audio, c.camera, c.screen, c.retired = nil, nil, nil, nil
}

func (c *Controller) acquisitionFailed(op string, err error) error {
	e := opError(op, "", ErrMediaAcquisition, err)
	c.log.Warn().Err(e).Msg("media acquisition failed")
	c.notify.Notify(noticeFor(e, "Camera or microphone is not available"))
	return e
}

func (c *Controller) send(req protocol.Request) {
	if c.signal == nil {
		return
	}
	if err := c.signal.Send(req); err != nil {
		c.log.Debug().Err(err).Str("type", string(req.Kind())).Msg("signal not sent")
	}
}
