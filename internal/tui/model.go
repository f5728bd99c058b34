// Package tui renders a live view of a run: dispatched tasks and their actor
// activity, checklist progress, and the optimizer's prompt and score.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/config"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	PaneOptimizer
	paneCount
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane      TaskPaneModel
	progressPane  ProgressPaneModel
	optimizerPane OptimizerPaneModel
	settingsPane  SettingsPaneModel
	focusedPane   PaneID
	eventSub      <-chan events.Event
	goal          string
	finished      string // Terminal state, empty while running
	width         int
	height        int
	quitting      bool
	showSettings  bool
}

// New creates a new TUI model for a run of goal. It subscribes to all events
// from the bus.
func New(bus *events.Bus, cfg *config.Config, goal, prompt, globalPath, projectPath string) Model {
	return Model{
		taskPane:      NewTaskPaneModel(),
		progressPane:  NewProgressPaneModel(),
		optimizerPane: NewOptimizerPaneModel(prompt),
		settingsPane:  NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:   PaneTasks,
		eventSub:      bus.SubscribeAll(256),
		goal:          goal,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Settings panel is modal.
		if m.showSettings {
			if msg.String() == "esc" {
				m.showSettings = false
				m.settingsPane.SetVisible(false)
				return m, nil
			}
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneOptimizer
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.TaskStartedEvent, events.TaskStepEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.TaskCompletedEvent, events.TaskFailedEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		m.optimizerPane, _ = m.optimizerPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.PromptUpdatedEvent:
		m.optimizerPane, _ = m.optimizerPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.ProgressEvent:
		m.progressPane, _ = m.progressPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.WorkflowFinishedEvent:
		m.progressPane, _ = m.progressPane.Update(msg)
		m.finished = msg.State
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	right := lipgloss.JoinVertical(lipgloss.Left, m.progressPane.View(), m.optimizerPane.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), right)

	return lipgloss.JoinVertical(lipgloss.Left, m.statusLine(), body, HelpView())
}

func (m Model) statusLine() string {
	status := StyleStatusRunning.Render("running")
	switch m.finished {
	case "":
	case "complete":
		status = StyleStatusComplete.Render(m.finished)
	default:
		status = StyleStatusFailed.Render(m.finished)
	}
	return StyleTitle.Render("Goal: "+truncate(m.goal, max(m.width-20, 10))) + " " + status
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 50) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 2 // status line and help bar
	progressHeight := (availableHeight * 60) / 100

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, progressHeight)
	m.optimizerPane.SetSize(rightWidth, availableHeight-progressHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
	m.optimizerPane.SetFocused(m.focusedPane == PaneOptimizer)
}
