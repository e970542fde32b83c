// Package ui renders the session facade in the terminal.
package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const meterTick = 250 * time.Millisecond

// Controller is the part of the session facade the UI drives.
type Controller interface {
	Connect()
	Disconnect()
	ToggleInput(domain.TrackSource)
	Snapshot() orch.Snapshot
	Updates() <-chan orch.Snapshot
}

type snapshotMsg orch.Snapshot

type closedMsg struct{}

type tickMsg time.Time

type Model struct {
	ctrl Controller
	keys KeyMap
	help help.Model

	snap   orch.Snapshot
	width  int
	height int
	closed bool

	meter meter
}

func New(ctrl Controller) Model {
	return Model{
		ctrl: ctrl,
		keys: DefaultKeyMap(),
		help: help.New(),
		snap: ctrl.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitSnapshot(), tick())
}

func (m Model) waitSnapshot() tea.Cmd {
	updates := m.ctrl.Updates()
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func tick() tea.Cmd {
	return tea.Tick(meterTick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.snap = orch.Snapshot(msg)
		return m, m.waitSnapshot()

	case closedMsg:
		m.closed = true
		return m, nil

	case tickMsg:
		m.meter.sample(m.snap.Audio.Meter, time.Time(msg))
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Connect):
		m.ctrl.Connect()

	case key.Matches(msg, m.keys.Disconnect):
		m.ctrl.Disconnect()

	case key.Matches(msg, m.keys.Camera):
		m.ctrl.ToggleInput(domain.SourceCamera)

	case key.Matches(msg, m.keys.Mic):
		m.ctrl.ToggleInput(domain.SourceMicrophone)
	}
	return m, nil
}
