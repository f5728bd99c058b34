package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/events"
)

// OptimizerPaneModel shows the composite score and the current planning
// prompt.
type OptimizerPaneModel struct {
	prompt    string
	composite float64
	updates   int
	scores    []float64 // Outcome scores in arrival order
	width     int
	height    int
	focused   bool
}

// NewOptimizerPaneModel creates an optimizer pane starting from prompt.
func NewOptimizerPaneModel(prompt string) OptimizerPaneModel {
	return OptimizerPaneModel{prompt: prompt, composite: 1}
}

// Update handles messages for the optimizer pane.
func (m OptimizerPaneModel) Update(msg tea.Msg) (OptimizerPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.PromptUpdatedEvent:
		m.prompt = msg.Prompt
		m.composite = msg.CompositeScore
		m.updates++
	case events.TaskCompletedEvent:
		m.scores = append(m.scores, 1)
	case events.TaskFailedEvent:
		m.scores = append(m.scores, 0)
	}
	return m, nil
}

// View renders the optimizer pane.
func (m OptimizerPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Optimizer")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Composite: %s   Updates: %s   Outcomes: %s\n",
		humanize.FormatFloat("#.##", m.composite), humanize.Comma(int64(m.updates)), sparkline(m.scores))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Width(max(m.width-6, 10)).Render(m.prompt))

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func sparkline(scores []float64) string {
	if len(scores) == 0 {
		return "-"
	}
	var b strings.Builder
	for _, s := range scores {
		if s >= 1 {
			b.WriteString(StyleStatusComplete.Render("▇"))
		} else {
			b.WriteString(StyleStatusFailed.Render("▁"))
		}
	}
	return b.String()
}

// SetSize updates the pane dimensions.
func (m *OptimizerPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *OptimizerPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
