package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/adapters/wsclient"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/peer"
)

var (
	flagParticipant string
	flagCameras     []string
	flagCamera      string
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and stay until interrupted",
	Long: `Join a room with a synthetic camera and microphone.

While joined, type a command and press enter:
  a  toggle microphone      v  toggle camera
  c  switch camera          s  start/stop screen share
  l  list links             q  leave

Examples:
  meet join ab12-cd34-ef56
  meet join ab12-cd34-ef56 --cameras front,back --camera back`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := domain.RoomID(args[0])
		if err := room.Validate(); err != nil {
			return fmt.Errorf("%q: %w", args[0], err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return joinRoom(ctx, cfg, room, domain.ParticipantID(flagParticipant), os.Stdin)
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagParticipant, "participant", "", "participant id (defaults to the connection id)")
	joinCmd.Flags().StringSliceVar(&flagCameras, "cameras", nil, "synthetic camera ids to expose")
	joinCmd.Flags().StringVar(&flagCamera, "camera", "", "preferred camera id")
}

func cameraList(ids []string) []core.DeviceInfo {
	out := make([]core.DeviceInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.DeviceInfo{ID: id, Label: id})
	}
	return out
}

func joinRoom(ctx context.Context, cfg *config.ClientConfig, room domain.RoomID, pid domain.ParticipantID, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notices := NewNoticePrinter(os.Stdout)
	client := wsclient.New(wsclient.OptionsFrom(cfg), log.Logger)
	devices := rtc.NewSyntheticDevices(cameraList(flagCameras)...)
	ctrl := peer.NewController(devices, client, notices, log.Logger)
	orch := peer.NewOrchestrator(peer.Options{
		Factory: rtc.NewFactory(rtc.ConfigFrom(cfg)),
		Signal:  client,
		Tracks:  ctrl,
		Notify:  notices,
		Sink:    newTerminalSink(os.Stdout),
		Log:     log.Logger,
	})
	ctrl.Bind(orch)
	defer ctrl.Release()

	if _, err := ctrl.Acquire(ctx, peer.Preference{DeviceID: flagCamera}); err != nil {
		return err
	}
	if err := orch.Join(room, pid, cfg.DisplayName); err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()
	go orch.Run(ctx, client.Events())
	go readCommands(ctx, in, ctrl, orch, cancel)

	PrintInfof("%s joining %s (q to leave)", IconRoom, TitleStyle.Render(string(room)))

	var err error
	select {
	case <-ctx.Done():
	case err = <-runErr:
	}
	orch.Close()

	fmt.Println(LinksView(orch.Links()))
	if errors.Is(err, wsclient.ErrReconnectExhausted) {
		return err
	}
	PrintSuccess("left " + string(room))
	return nil
}

// controls is what the command loop drives.
type controls interface {
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	SwitchCamera(ctx context.Context) error
	StartScreenShare(ctx context.Context) error
	StopScreenShare() error
	State() peer.LocalMediaState
}

type linkLister interface {
	Links() []peer.LinkInfo
	Leave()
}

func readCommands(ctx context.Context, in io.Reader, media controls, links linkLister, quit context.CancelFunc) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !runCommand(ctx, strings.TrimSpace(sc.Text()), media, links, os.Stdout) {
			quit()
			return
		}
	}
}

// runCommand executes one typed command. It returns false on quit.
func runCommand(ctx context.Context, line string, media controls, links linkLister, out io.Writer) bool {
	switch line {
	case "":
	case "a":
		on, err := media.ToggleAudio()
		report(out, err, "microphone "+onOff(on))
	case "v":
		on, err := media.ToggleVideo()
		report(out, err, "camera "+onOff(on))
	case "c":
		err := media.SwitchCamera(ctx)
		st := media.State()
		name := st.DeviceID
		if name == "" {
			name = string(st.Facing)
		}
		report(out, err, "camera "+name)
	case "s":
		if media.State().Source == peer.SourceScreen {
			report(out, media.StopScreenShare(), "screen share stopped")
		} else {
			report(out, media.StartScreenShare(ctx), "screen share started")
		}
	case "l":
		fmt.Fprintln(out, LinksView(links.Links()))
	case "q":
		links.Leave()
		return false
	default:
		fmt.Fprintln(out, MutedStyle.Render("unknown command "+line))
	}
	return true
}

// report prints ok unless err is set. Media failures were already shown as
// notices.
func report(out io.Writer, err error, ok string) {
	switch {
	case err == nil:
		fmt.Fprintf(out, "%s %s\n", SuccessStyle.Render(IconSuccess), ok)
	case errors.Is(err, peer.ErrMediaAcquisition):
	default:
		fmt.Fprintf(out, "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(err.Error()))
	}
}
