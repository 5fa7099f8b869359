package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Enter     key.Binding
	Back      key.Binding
	NextPage  key.Binding
	PrevPage  key.Binding
	Refresh   key.Binding
	Bookmark  key.Binding
	Bookmarks key.Binding
	Apply     key.Binding
	Reply     key.Binding
	Search    key.Binding
	Tab       key.Binding
	Submit    key.Binding
	DryRun    key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	NextPage:  key.NewBinding(key.WithKeys("n", "pgdown"), key.WithHelp("n", "older")),
	PrevPage:  key.NewBinding(key.WithKeys("p", "pgup"), key.WithHelp("p", "newer")),
	Refresh:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "refresh")),
	Bookmark:  key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bookmark")),
	Bookmarks: key.NewBinding(key.WithKeys("B"), key.WithHelp("B", "bookmarks")),
	Apply:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply")),
	Reply:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reply")),
	Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "find list")),
	Tab:       key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	Submit:    key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "run")),
	DryRun:    key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "dry run")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}
