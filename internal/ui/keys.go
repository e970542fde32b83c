package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap maps keys to the front-end actions.
type KeyMap struct {
	Connect    key.Binding
	Disconnect key.Binding
	Camera     key.Binding
	Mic        key.Binding
	Quit       key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Connect: key.NewBinding(
			key.WithKeys("c", "enter"),
			key.WithHelp("c", "connect"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "disconnect"),
		),
		Camera: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "camera"),
		),
		Mic: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "microphone"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Disconnect, k.Camera, k.Mic, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
