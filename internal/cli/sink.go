package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/peer"
)

// terminalSink reports remote media instead of displaying it. Incoming RTP
// is read and discarded so the stack keeps its buffers moving.
type terminalSink struct {
	out io.Writer

	mu       sync.Mutex
	tracks   map[domain.ParticipantID]int
	received map[domain.ParticipantID]*rxStats
}

type rxStats struct {
	packets int
	bytes   int
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{
		out:      out,
		tracks:   make(map[domain.ParticipantID]int),
		received: make(map[domain.ParticipantID]*rxStats),
	}
}

func (s *terminalSink) Attach(remote domain.ParticipantID, track *webrtc.TrackRemote) {
	s.mu.Lock()
	s.tracks[remote]++
	s.mu.Unlock()
	fmt.Fprintf(s.out, "%s %s %s\n", IconPeer, TitleStyle.Render(string(remote)), MutedStyle.Render("sending "+track.Kind().String()))

	go func() {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				log.Debug().Err(err).Str("module", "cli.sink").Str("remote", string(remote)).Msg("remote track ended")
				return
			}
			s.count(remote, pkt)
		}
	}()
}

func (s *terminalSink) count(remote domain.ParticipantID, pkt *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.received[remote]
	if !ok {
		st = &rxStats{}
		s.received[remote] = st
	}
	st.packets++
	st.bytes += len(pkt.Payload)
}

func (s *terminalSink) Detach(remote domain.ParticipantID) {
	s.mu.Lock()
	_, attached := s.tracks[remote]
	st, counted := s.received[remote]
	delete(s.tracks, remote)
	delete(s.received, remote)
	s.mu.Unlock()
	if !attached && !counted {
		return
	}
	line := string(remote) + " left"
	if counted {
		line = fmt.Sprintf("%s after %d packets (%d bytes)", line, st.packets, st.bytes)
	}
	fmt.Fprintf(s.out, "%s %s\n", IconPeer, MutedStyle.Render(line))
}

func (s *terminalSink) Update(remote domain.ParticipantID, st peer.RemoteState) {
	line := fmt.Sprintf("%s mic %s", remote, onOff(st.AudioEnabled))
	if st.ScreenSharing {
		line = fmt.Sprintf("%s %s", line, IconScreen+" sharing screen")
	}
	fmt.Fprintf(s.out, "%s %s\n", IconPeer, MutedStyle.Render(line))
}
