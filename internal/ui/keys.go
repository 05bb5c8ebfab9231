package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down, Left, Right key.Binding
	Top, Bottom           key.Binding

	AllQueues, Potluck, LastChance, Encore key.Binding
	HighlightOnly, HideUnavailable         key.Binding
	Sort, Pause, Fetch                     key.Binding
	ClearUnavailable, ClearAll             key.Binding
	Debug, Help, Quit                      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:    key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑/k", "up")),
		Down:  key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("↓/j", "down")),
		Left:  key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("←/h", "left")),
		Right: key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("→/l", "right")),

		Top:    key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "first")),
		Bottom: key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "last")),

		AllQueues:  key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "all queues")),
		Potluck:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "RFY")),
		LastChance: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "AFA")),
		Encore:     key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "AI")),

		HighlightOnly:   key.NewBinding(key.WithKeys("H"), key.WithHelp("H", "highlights only")),
		HideUnavailable: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "hide unavailable")),

		Sort:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		Pause: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		Fetch: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "fetch")),

		ClearUnavailable: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear unavailable")),
		ClearAll:         key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "clear all")),

		Debug: key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "debug")),
		Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Fetch, k.Sort, k.Pause, k.HighlightOnly, k.ClearUnavailable, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.Top, k.Bottom},
		{k.AllQueues, k.Potluck, k.LastChance, k.Encore, k.HighlightOnly, k.HideUnavailable},
		{k.Sort, k.Pause, k.Fetch, k.ClearUnavailable, k.ClearAll},
		{k.Debug, k.Help, k.Quit},
	}
}
