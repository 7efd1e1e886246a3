package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard bindings. Plain letters go to the search box.
type KeyMap struct {
	Quit          key.Binding
	Up            key.Binding
	Down          key.Binding
	Open          key.Binding
	Close         key.Binding
	Download      key.Binding
	Reload        key.Binding
	CycleDate     key.Binding
	CycleCategory key.Binding
	CycleAuthor   key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit:          key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		Up:            key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
		Down:          key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
		Open:          key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details / :upload")),
		Close:         key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Download:      key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "download")),
		Reload:        key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reload")),
		CycleDate:     key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "date")),
		CycleCategory: key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "category")),
		CycleAuthor:   key.NewBinding(key.WithKeys("ctrl+a"), key.WithHelp("ctrl+a", "author")),
	}
}

func (k KeyMap) help() []key.Binding {
	return []key.Binding{k.Open, k.Download, k.Reload, k.CycleDate, k.CycleCategory, k.CycleAuthor, k.Quit}
}
