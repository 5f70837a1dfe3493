package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/rulelens/metrics"
)

// StatsModel shows a metrics snapshot as stat boxes.
type StatsModel struct {
	snap     *metrics.Snapshot
	quitting bool
}

// NewStatsModel builds a StatsModel from a metrics.Snapshot or a pointer to one.
func NewStatsModel(data any) (*StatsModel, error) {
	switch s := data.(type) {
	case *metrics.Snapshot:
		if s == nil {
			return nil, fmt.Errorf("invalid data type for metrics view: %T", data)
		}
		return &StatsModel{snap: s}, nil
	case metrics.Snapshot:
		return &StatsModel{snap: &s}, nil
	default:
		return nil, fmt.Errorf("invalid data type for metrics view: %T", data)
	}
}

// Init implements tea.Model.
func (m *StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m *StatsModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run Metrics"))
	b.WriteString("\n")
	b.WriteString(renderMetrics(m.snap))
	b.WriteString("\n")
	b.WriteString(helpLine(keys.Quit))
	return b.String()
}

func renderMetrics(s *metrics.Snapshot) string {
	if s == nil {
		return MutedStyle.Render("(no metrics recorded)")
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Runs", fmt.Sprintf("%d", s.RunsStarted), ValueStyle),
		renderStatBox("Completed", fmt.Sprintf("%d", s.RunsCompleted), SuccessStyle),
		renderStatBox("Failed", fmt.Sprintf("%d", s.RunsFailed), ErrorStyle),
		renderStatBox("Steps", fmt.Sprintf("%d", s.StepsExecuted), ValueStyle),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Cache Hit Rate", fmt.Sprintf("%.0f%%", s.CacheHitRate()*100), SuccessStyle),
		renderStatBox("Short Circuits", fmt.Sprintf("%d", s.ShortCircuits), ValueStyle),
		renderStatBox("Fallbacks", fmt.Sprintf("%d", s.Fallbacks), WarningStyle),
		renderStatBox("Coalesced", fmt.Sprintf("%d", s.CacheCoalesced), ValueStyle),
	))
	b.WriteString("\n\n")

	if len(s.StepsByName) > 0 {
		b.WriteString(SelectedStyle.Render("Steps by name"))
		b.WriteString("\n")
		b.WriteString(renderCounts(s.StepsByName))
		b.WriteString("\n")
	}
	if len(s.CollaboratorFailures) > 0 {
		b.WriteString(ErrorStyle.Render("Collaborator failures"))
		b.WriteString("\n")
		b.WriteString(renderCounts(s.CollaboratorFailures))
		b.WriteString("\n")
	}

	dims := []string{}
	if s.CacheBackend != "" {
		dims = append(dims, renderField("Cache", s.CacheBackend))
	}
	if s.Provider != "" {
		dims = append(dims, renderField("Provider", s.Provider))
	}
	if s.TraceBackend != "" {
		dims = append(dims, renderField("Trace", s.TraceBackend))
	}
	b.WriteString(strings.Join(dims, "\n"))
	return b.String()
}

func renderStatBox(label, value string, valueStyle lipgloss.Style) string {
	content := StatValueStyle.Inherit(valueStyle).Render(value) + "\n" + StatLabelStyle.Render(label)
	return StatBoxStyle.Render(content)
}

func renderCounts(m map[string]int64) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, k := range names {
		lines[i] = "  " + renderField(k, fmt.Sprintf("%d", m[k]))
	}
	return strings.Join(lines, "\n")
}

// RenderStatsStatic renders the metrics view without running the program.
func RenderStatsStatic(s *metrics.Snapshot) string {
	return (&StatsModel{snap: s}).View()
}
