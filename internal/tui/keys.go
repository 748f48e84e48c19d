package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the console's keyboard shortcuts
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Goto    key.Binding
	Refresh key.Binding
	Logout  key.Binding
	Next    key.Binding
	Prev    key.Binding
	Submit  key.Binding
	Cancel  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Goto: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "go to path"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Logout: key.NewBinding(
		key.WithKeys("L"),
		key.WithHelp("L", "log out"),
	),
	Next: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("tab", "next field"),
	),
	Prev: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("shift+tab", "previous field"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "sign in"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// workspaceKeys is the help.KeyMap shown next to the navigation.
type workspaceKeys struct{ keyMap }

func (k workspaceKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Refresh, k.Logout, k.Help, k.Quit}
}

func (k workspaceKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open, k.Goto},
		{k.Refresh, k.Logout, k.Help, k.Quit},
	}
}

// loginKeys is the help.KeyMap shown under the login form.
type loginKeys struct{ keyMap }

func (k loginKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Submit, k.quitOnly()}
}

func (k loginKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Prev, k.Submit, k.quitOnly()}}
}

// quitOnly is Quit without "q", which the login form needs for typing.
func (k keyMap) quitOnly() key.Binding {
	return key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit"))
}
