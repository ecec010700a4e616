package rtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const audioFrame = 20 * time.Millisecond

// SyntheticDevices provides capture tracks for headless participants. The
// microphone emits Opus silence; cameras and screens negotiate a VP8 track
// without feeding frames.
type SyntheticDevices struct {
	cameras []core.DeviceInfo

	mu sync.Mutex
	// revoked screens end as if the user stopped sharing from the OS.
	screens []*LocalTrack
}

var _ core.MediaDevices = (*SyntheticDevices)(nil)

// NewSyntheticDevices lists the given cameras. With none, callers fall back
// to facing mode selection.
func NewSyntheticDevices(cameras ...core.DeviceInfo) *SyntheticDevices {
	return &SyntheticDevices{cameras: cameras}
}

func (d *SyntheticDevices) Cameras(ctx context.Context) ([]core.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]core.DeviceInfo, len(d.cameras))
	copy(out, d.cameras)
	return out, nil
}

func (d *SyntheticDevices) Open(ctx context.Context, c core.Constraints) (core.MediaSource, error) {
	if err := ctx.Err(); err != nil {
		return core.MediaSource{}, err
	}
	if !c.Audio && !c.Video {
		return core.MediaSource{}, fmt.Errorf("%w: nothing requested", core.ErrNoDevice)
	}

	var src core.MediaSource
	if c.Video {
		stream := "camera"
		if c.DeviceID != "" {
			if !d.hasCamera(c.DeviceID) {
				return core.MediaSource{}, fmt.Errorf("%w: camera %q", core.ErrNoDevice, c.DeviceID)
			}
			stream = "camera-" + c.DeviceID
		} else if c.Facing != "" {
			stream = "camera-" + string(c.Facing)
		}
		v, err := NewLocalTrack(webrtc.RTPCodecTypeVideo, stream)
		if err != nil {
			return core.MediaSource{}, err
		}
		src.Video = v
	}
	if c.Audio {
		a, err := NewLocalTrack(webrtc.RTPCodecTypeAudio, "microphone")
		if err != nil {
			if src.Video != nil {
				src.Video.Stop()
			}
			return core.MediaSource{}, err
		}
		go pump(a, opusSilence, audioFrame)
		src.Audio = a
	}
	return src, nil
}

func (d *SyntheticDevices) OpenScreen(ctx context.Context) (core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := NewLocalTrack(webrtc.RTPCodecTypeVideo, "screen")
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.screens = append(d.screens, t)
	d.mu.Unlock()
	return t, nil
}

// RevokeScreens ends every open screen capture.
func (d *SyntheticDevices) RevokeScreens() {
	d.mu.Lock()
	screens := d.screens
	d.screens = nil
	d.mu.Unlock()
	for _, s := range screens {
		s.Stop()
	}
}

func (d *SyntheticDevices) hasCamera(id string) bool {
	for _, c := range d.cameras {
		if c.ID == id {
			return true
		}
	}
	return false
}

func pump(t *LocalTrack, frame []byte, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-t.Ended():
			return
		case <-ticker.C:
			if err := t.WriteSample(frame, every); err != nil {
				log.Debug().Err(err).Str("module", "rtc").Str("track_id", t.ID()).Msg("sample write")
			}
		}
	}
}
