package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/events"
)

// TaskState is the TUI's view of one dispatched task.
type TaskState struct {
	TaskID      string
	Description string
	Status      string // "running", "completed", "failed"
	Activity    []string
	StartTime   time.Time
	Duration    time.Duration
}

// TaskPaneModel lists dispatched tasks and shows the actor activity of the
// selected one in a scrollable viewport.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	taskOrder   []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

const listWidth = 28

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		if _, exists := m.tasks[msg.ID]; !exists {
			m.tasks[msg.ID] = &TaskState{
				TaskID:      msg.ID,
				Description: msg.Description,
				Status:      "running",
				StartTime:   msg.Timestamp,
			}
			m.taskOrder = append(m.taskOrder, msg.ID)
		} else {
			// A task can be dispatched again after a refresh.
			m.tasks[msg.ID].Status = "running"
		}
		// Follow the dispatched task.
		for i, id := range m.taskOrder {
			if id == msg.ID {
				m.selectedIdx = i
			}
		}
		m.updateViewportContent()

	case events.TaskStepEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Activity = append(task.Activity,
				"Thought: "+msg.Thought,
				"Action: "+msg.Action,
				"Observation: "+msg.Observation,
				"")
			if m.selectedTaskID() == msg.ID {
				m.updateTag++
				tag := m.updateTag
				return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
					return tickMsg{tag: tag}
				})
			}
		}

	case events.TaskCompletedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = "completed"
			task.Duration = msg.Duration
			task.Activity = append(task.Activity, fmt.Sprintf("[Completed in %v]", msg.Duration.Round(time.Millisecond)))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.TaskFailedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = "failed"
			task.Duration = msg.Duration
			task.Activity = append(task.Activity, fmt.Sprintf("[Failed: %v]", msg.Err))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList() string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(listWidth, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, id := range m.taskOrder {
			task := m.tasks[id]
			name := truncate(task.Description, listWidth-4)

			line := fmt.Sprintf("%s %s", StatusIcon(task.Status), name)
			if i == m.selectedIdx {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(listWidth).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "completed":
		return StyleStatusComplete.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// Selected returns the selected task, or nil.
func (m TaskPaneModel) Selected() *TaskState {
	return m.tasks[m.selectedTaskID()]
}

func (m *TaskPaneModel) updateViewportContent() {
	task, exists := m.tasks[m.selectedTaskID()]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := fmt.Sprintf("%s  %s\nstarted %s\n\n", task.TaskID, task.Description, humanize.Time(task.StartTime))
	m.viewport.SetContent(header + strings.Join(task.Activity, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n < 4 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
