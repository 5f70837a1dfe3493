package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// View types.
const (
	ViewTrace   = "inspect_trace"
	ViewMetrics = "stats_metrics"
)

// Run opens the viewer for viewType.
func Run(viewType string, data any) error {
	var model tea.Model
	switch viewType {
	case ViewTrace:
		m, err := NewTraceModel(data)
		if err != nil {
			return err
		}
		model = m
	case ViewMetrics:
		m, err := NewStatsModel(data)
		if err != nil {
			return err
		}
		model = m
	default:
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// IsTUISupported reports whether viewType has a viewer.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews lists the view types with a viewer.
func SupportedTUIViews() []string {
	return []string{ViewTrace, ViewMetrics}
}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Metrics  key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous step"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next step"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "b"),
		key.WithHelp("pgup", "scroll detail up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "f", " "),
		key.WithHelp("pgdn", "scroll detail down"),
	),
	Metrics: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "toggle metrics"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func helpLine(bindings ...key.Binding) string {
	s := ""
	for i, b := range bindings {
		if i > 0 {
			s += "  "
		}
		h := b.Help()
		s += h.Key + " " + h.Desc
	}
	return HelpStyle.Render(s)
}
