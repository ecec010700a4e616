package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dkeye/Meet/internal/peer"
)

var (
	Primary = lipgloss.Color("#22d3ee")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)

	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary).Align(lipgloss.Center)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	TableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconRoom    = "🚪"
	IconPeer    = "👤"
	IconScreen  = "🖥️"
)

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}

// NoticePrinter renders advisory notices as one styled line each.
type NoticePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewNoticePrinter(out io.Writer) *NoticePrinter {
	if out == nil {
		out = os.Stdout
	}
	return &NoticePrinter{out: out}
}

func (p *NoticePrinter) Notify(n peer.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, FormatNotice(n))
}

func FormatNotice(n peer.Notice) string {
	text := n.Text
	if n.Remote != "" && text == "" {
		text = string(n.Remote)
	}
	switch {
	case errors.Is(n.Kind, peer.ErrServerRejected), errors.Is(n.Kind, peer.ErrMediaAcquisition):
		return fmt.Sprintf("%s %s", ErrorStyle.Render(IconError), ErrorStyle.Render(text))
	default:
		return fmt.Sprintf("%s %s", WarningStyle.Render(IconWarning), WarningStyle.Render(text))
	}
}

// LinksView renders the link table shown by the "links" command and on exit.
func LinksView(links []peer.LinkInfo) string {
	if len(links) == 0 {
		return MutedStyle.Render("No peers")
	}
	rows := make([][]string, 0, len(links))
	for _, l := range links {
		rows = append(rows, []string{
			string(l.Participant),
			l.Role.String(),
			l.State.String(),
			onOff(l.Media.AudioEnabled),
			onOff(l.Media.ScreenSharing),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Peer", "Role", "State", "Audio", "Screen").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
