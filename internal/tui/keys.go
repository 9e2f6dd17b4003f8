package tui

import "github.com/charmbracelet/bubbles/key"

type editorKeys struct {
	Mark        key.Binding
	TogglePlay  key.Binding
	PlayAll     key.Binding
	PlaySel     key.Binding
	Delete      key.Binding
	SelectNext  key.Binding
	ZoomIn      key.Binding
	ZoomOut     key.Binding
	Back        key.Binding
	Forward     key.Binding
	Download    key.Binding
	Export      key.Binding
	ExportEDL   key.Binding
	CloseEditor key.Binding
	Quit        key.Binding
}

var editorKeyMap = editorKeys{
	Mark:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "mark")),
	TogglePlay:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
	PlayAll:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "play all")),
	PlaySel:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "play clip")),
	Delete:      key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "delete")),
	SelectNext:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next clip")),
	ZoomIn:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
	ZoomOut:     key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "zoom out")),
	Back:        key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "-5s")),
	Forward:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "+5s")),
	Download:    key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "download")),
	Export:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export mp4")),
	ExportEDL:   key.NewBinding(key.WithKeys("E"), key.WithHelp("E", "export edl")),
	CloseEditor: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "projects")),
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k editorKeys) help() []key.Binding {
	return []key.Binding{k.Mark, k.TogglePlay, k.PlayAll, k.PlaySel, k.Delete, k.SelectNext,
		k.ZoomIn, k.ZoomOut, k.Download, k.Export, k.ExportEDL, k.CloseEditor, k.Quit}
}

type listKeys struct {
	Up     key.Binding
	Down   key.Binding
	Open   key.Binding
	New    key.Binding
	Delete key.Binding
	Reload key.Binding
	Quit   key.Binding
}

var listKeyMap = listKeys{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "down")),
	Open:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	New:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new from URL")),
	Delete: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete")),
	Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k listKeys) help() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.New, k.Delete, k.Reload, k.Quit}
}

func helpLine(bindings []key.Binding) string {
	var out string
	for i, b := range bindings {
		if i > 0 {
			out += "  "
		}
		h := b.Help()
		out += h.Key + " " + h.Desc
	}
	return out
}
