package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/events"
)

// ProgressPaneModel shows the checklist and task counts.
type ProgressPaneModel struct {
	total      int
	complete   int
	inProgress int
	failed     int
	pending    int
	iteration  int
	checklist  string
	state      string // Terminal workflow state once finished
	bar        progress.Model
	width      int
	height     int
	focused    bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{
		bar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.ProgressEvent:
		m.total = msg.Total
		m.complete = msg.Complete
		m.inProgress = msg.InProgress
		m.failed = msg.Failed
		m.pending = msg.Pending
		m.iteration = msg.Iteration
		m.checklist = msg.Checklist

	case events.WorkflowFinishedEvent:
		m.state = msg.State
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Iteration: %d\n", m.iteration)
	fmt.Fprintf(&b, "Complete:  %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.complete)))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.inProgress)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed)))
	fmt.Fprintf(&b, "Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending)))
	if m.state != "" {
		fmt.Fprintf(&b, "State:     %s\n", StyleTitle.Render(m.state))
	}
	b.WriteString("\n")

	if m.total > 0 {
		m.bar.Width = min(m.width-16, 40)
		done := float64(m.complete+m.failed) / float64(m.total)
		fmt.Fprintf(&b, "%s  %d/%d\n\n", m.bar.ViewAs(done), m.complete+m.failed, m.total)
	}

	if m.checklist != "" {
		b.WriteString(m.checklist)
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
