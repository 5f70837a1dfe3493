package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/rulelens/trace"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	listWidth     = 34
)

// TraceModel browses the steps of one run trace.
type TraceModel struct {
	doc         *trace.Document
	cursor      int
	detail      viewport.Model
	showMetrics bool
	width       int
	height      int
	quitting    bool
}

// NewTraceModel builds a TraceModel from a *trace.Document.
func NewTraceModel(data any) (*TraceModel, error) {
	doc, ok := data.(*trace.Document)
	if !ok || doc == nil {
		return nil, fmt.Errorf("invalid data type for trace view: %T", data)
	}
	m := &TraceModel{
		doc:    doc,
		width:  defaultWidth,
		height: defaultHeight,
	}
	m.detail = viewport.New(m.detailWidth(), m.bodyHeight())
	m.refreshDetail()
	return m, nil
}

// Init implements tea.Model.
func (m *TraceModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *TraceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.refreshDetail()
			}
			return m, nil
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.doc.Steps)-1 {
				m.cursor++
				m.refreshDetail()
			}
			return m, nil
		case key.Matches(msg, keys.Metrics):
			m.showMetrics = !m.showMetrics
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.Width = m.detailWidth()
		m.detail.Height = m.bodyHeight()
		m.refreshDetail()
		return m, nil
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *TraceModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Run %s", m.doc.RunID)))
	b.WriteString("\n")
	b.WriteString(m.header())
	b.WriteString("\n\n")

	if m.showMetrics {
		b.WriteString(renderMetrics(m.doc.Metrics))
	} else {
		list := lipgloss.NewStyle().Width(listWidth).Render(m.stepList())
		detail := BoxStyle.Render(m.detail.View())
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, list, detail))
	}

	b.WriteString("\n")
	b.WriteString(helpLine(keys.Up, keys.Down, keys.PageDown, keys.Metrics, keys.Quit))
	return b.String()
}

// Selected returns the entry under the cursor.
func (m *TraceModel) Selected() (trace.Entry, bool) {
	if len(m.doc.Steps) == 0 {
		return trace.Entry{}, false
	}
	return m.doc.Steps[m.cursor], true
}

func (m *TraceModel) header() string {
	outcome := outcomeOf(m.doc)
	cache := "no"
	if m.doc.CacheHit {
		cache = "yes"
	}
	rows := []string{
		renderField("Mode", m.doc.Mode),
		LabelStyle.Render("Outcome") + OutcomeStyle(outcome).Render(outcome),
		renderField("Duration", m.doc.Duration().String()),
		renderField("Steps", fmt.Sprintf("%d", len(m.doc.Steps))),
		renderField("Cache Hit", cache),
	}
	return strings.Join(rows, "\n")
}

func (m *TraceModel) stepList() string {
	if len(m.doc.Steps) == 0 {
		return MutedStyle.Render("(no steps)")
	}
	lines := make([]string, 0, len(m.doc.Steps))
	for i, e := range m.doc.Steps {
		marker, style := CacheStyle(e.CacheHit)
		line := fmt.Sprintf("%-20s %s", e.Name, style.Render(marker))
		if i == m.cursor {
			line = SelectedStyle.Render("> ") + SelectedStyle.Render(fmt.Sprintf("%-20s", e.Name)) + " " + style.Render(marker)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *TraceModel) refreshDetail() {
	m.detail.SetContent(stepDetail(m.doc, m.cursor))
	m.detail.GotoTop()
}

func (m *TraceModel) detailWidth() int {
	w := m.width - listWidth - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m *TraceModel) bodyHeight() int {
	// title, header rows and help take about 10 lines.
	h := m.height - 12
	if h < 5 {
		h = 5
	}
	return h
}

// stepDetail renders one entry: its timestamp then its data as indented JSON.
func stepDetail(doc *trace.Document, i int) string {
	if i < 0 || i >= len(doc.Steps) {
		return MutedStyle.Render("(no step selected)")
	}
	e := doc.Steps[i]

	var b strings.Builder
	b.WriteString(SelectedStyle.Render(e.Name))
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(e.Ts.UTC().Format("2006-01-02T15:04:05.000Z07:00")))
	b.WriteString("\n\n")

	if len(e.Data) == 0 {
		b.WriteString(MutedStyle.Render("(no data)"))
		return b.String()
	}
	raw, err := json.MarshalIndent(e.Data, "", "  ")
	if err != nil {
		b.WriteString(ErrorStyle.Render(err.Error()))
		return b.String()
	}
	b.Write(raw)
	return b.String()
}

// outcomeOf derives the run outcome from the trace: an error entry means
// the run failed.
func outcomeOf(doc *trace.Document) string {
	if _, ok := doc.Find("error"); ok {
		return "run_error"
	}
	return "success"
}

func renderField(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}

// RenderTraceStatic renders the trace view without running the program.
func RenderTraceStatic(doc *trace.Document) string {
	m, err := NewTraceModel(doc)
	if err != nil {
		return ErrorStyle.Render(err.Error())
	}
	return m.View()
}
