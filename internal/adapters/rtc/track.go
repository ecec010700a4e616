package rtc

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/dkeye/Meet/internal/core"
)

// LocalTrack is a sample-fed outgoing track. Disabled tracks stay attached
// and simply stop writing samples.
type LocalTrack struct {
	track *webrtc.TrackLocalStaticSample
	kind  webrtc.RTPCodecType

	enabled  atomic.Bool
	stopOnce sync.Once
	ended    chan struct{}
}

var _ core.LocalTrack = (*LocalTrack)(nil)

func NewLocalTrack(kind webrtc.RTPCodecType, stream string) (*LocalTrack, error) {
	mime := webrtc.MimeTypeOpus
	if kind == webrtc.RTPCodecTypeVideo {
		mime = webrtc.MimeTypeVP8
	}
	tr, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		uuid.NewString(),
		stream,
	)
	if err != nil {
		return nil, err
	}
	t := &LocalTrack{track: tr, kind: kind, ended: make(chan struct{})}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) ID() string                { return t.track.ID() }
func (t *LocalTrack) StreamID() string          { return t.track.StreamID() }
func (t *LocalTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *LocalTrack) Enabled() bool             { return t.enabled.Load() }
func (t *LocalTrack) SetEnabled(on bool)        { t.enabled.Store(on) }
func (t *LocalTrack) Ended() <-chan struct{}    { return t.ended }

func (t *LocalTrack) Stop() {
	t.stopOnce.Do(func() { close(t.ended) })
}

// WriteSample forwards one encoded frame. Muted tracks drop it.
func (t *LocalTrack) WriteSample(data []byte, d time.Duration) error {
	select {
	case <-t.ended:
		return io.ErrClosedPipe
	default:
	}
	if !t.Enabled() {
		return nil
	}
	return t.track.WriteSample(media.Sample{Data: data, Duration: d})
}
