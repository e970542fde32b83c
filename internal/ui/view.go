package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

var (
	colorBorder  = lipgloss.Color("#4b5563")
	colorDimmed  = lipgloss.Color("#6b7280")
	colorBright  = lipgloss.Color("#f9fafb")
	colorHealthy = lipgloss.Color("#22c55e")
	colorWarning = lipgloss.Color("#d97706")
	colorDanger  = lipgloss.Color("#dc2626")
	colorAccent  = lipgloss.Color("#06b6d4")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDimmed)
	errStyle   = lipgloss.NewStyle().Foreground(colorDanger)
	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

const (
	minPanelWidth = 30
	meterWidth    = 24
	chatLines     = 10
)

func (m Model) View() string {
	if m.closed {
		return "Session closed.\n"
	}

	half := m.width/2 - 2
	if half < minPanelWidth {
		half = minPanelWidth
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		panel("Video", renderVideo(m.snap.Video), half),
		panel("Agent", renderAudio(m.snap, m.meter), half),
	)
	bottom := lipgloss.JoinHorizontal(lipgloss.Top,
		panel("Chat", renderChat(m.snap.Chat), half),
		panel("Settings", renderSettings(m.snap), half),
	)
	return lipgloss.JoinVertical(lipgloss.Left, statusLine(m.snap), top, bottom, m.help.View(m.keys))
}

func panel(title, body string, width int) string {
	return panelStyle.Width(width).Render(titleStyle.Render(title) + "\n" + body)
}

func phaseColor(p domain.ConnectionPhase) lipgloss.Color {
	switch p {
	case domain.PhaseConnected:
		return colorHealthy
	case domain.PhaseConnecting, domain.PhaseReconnecting:
		return colorWarning
	case domain.PhaseFailed:
		return colorDanger
	default:
		return colorDimmed
	}
}

func statusLine(s orch.Snapshot) string {
	dot := lipgloss.NewStyle().Foreground(phaseColor(s.Phase)).Render("● " + s.Settings.RoomState)
	line := fmt.Sprintf("%s  %s @ %s", dot, s.Settings.ParticipantID, s.Settings.AgentID)
	if s.Settings.LastError != "" {
		line += "  " + errStyle.Render(s.Settings.LastError)
	}
	return line
}

func renderVideo(v orch.VideoView) string {
	if v.Track == nil {
		return dimStyle.Render(v.Placeholder)
	}
	return fmt.Sprintf("local camera  %s", dimStyle.Render(v.Track.TrackID))
}

func renderAudio(s orch.Snapshot, mt meter) string {
	a := s.Audio
	if a.Track == nil {
		return dimStyle.Render(a.Message)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", a.Track.ParticipantID, dimStyle.Render(a.Track.TrackID))
	b.WriteString(bar(mt.level, meterWidth))
	if a.Meter != nil {
		st := a.Meter.Stats()
		fmt.Fprintf(&b, "\n%s", dimStyle.Render(fmt.Sprintf("%d pkts  %.1f kbps", st.Packets, mt.bitrate/1000)))
	}
	return b.String()
}

func bar(level float64, width int) string {
	n := int(level*float64(width) + 0.5)
	if n > width {
		n = width
	}
	filled := lipgloss.NewStyle().Foreground(colorAccent).Render(strings.Repeat("█", n))
	return filled + dimStyle.Render(strings.Repeat("░", width-n))
}

func renderChat(c orch.ChatView) string {
	if !c.Active && len(c.Entries) == 0 {
		return dimStyle.Render("Chat is available once the agent is speaking")
	}
	entries := c.Entries
	if len(entries) > chatLines {
		entries = entries[len(entries)-chatLines:]
	}
	if len(entries) == 0 {
		return dimStyle.Render("…")
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		ts := time.UnixMilli(e.TimestampMs).Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s %s %s", dimStyle.Render(ts), titleStyle.Render(e.SpeakerLabel+":"), e.Text))
	}
	return strings.Join(lines, "\n")
}

func onOff(present bool, degraded string) string {
	switch {
	case degraded != "":
		return errStyle.Render("degraded: " + degraded)
	case present:
		return lipgloss.NewStyle().Foreground(colorHealthy).Render("on")
	default:
		return dimStyle.Render("off")
	}
}

func renderSettings(s orch.Snapshot) string {
	st := s.Settings
	rows := [][2]string{
		{"Agent Id", st.AgentID},
		{"Participant Id", st.ParticipantID},
		{"Room State", st.RoomState},
		{"Agent Connected", st.AgentConnected},
		{"Camera", onOff(st.Camera, st.CameraError)},
		{"Microphone", onOff(st.Microphone, st.MicError)},
		{"Reconnects", fmt.Sprintf("%d/%d", st.Attempts, st.MaxAttempts)},
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%-16s", r[0]))+" "+r[1])
	}
	return strings.Join(lines, "\n")
}
