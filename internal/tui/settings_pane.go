package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/config"
)

// SettingsPaneModel manages the settings form overlay. Saved settings take
// effect on the next run.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Huh binds to these by pointer, so they live behind one allocation that
	// survives Bubble Tea copying the model.
	f *settingsFields
}

// settingsFields holds the form bindings (strings for Huh).
type settingsFields struct {
	saveTarget     string
	provider       string
	model          string
	baseURL        string
	windowSize     string
	scoreThreshold string
	maxIterations  string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		f:           &settingsFields{},
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.f.saveTarget = "project"
	m.f.provider = m.config.Oracle.Provider
	m.f.model = m.config.Oracle.Model
	m.f.baseURL = m.config.Oracle.BaseURL
	m.f.windowSize = strconv.Itoa(m.config.Optimizer.WindowSize)
	m.f.scoreThreshold = strconv.FormatFloat(m.config.Optimizer.ScoreThreshold, 'f', -1, 64)
	m.f.maxIterations = strconv.Itoa(m.config.Workflow.MaxIterations)
}

func validateInt(minimum int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("must be a whole number")
		}
		if n < minimum {
			return fmt.Errorf("must be at least %d", minimum)
		}
		return nil
	}
}

func validateThreshold(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return fmt.Errorf("must be a number between 0 and 1")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project (.aime/config.yaml)", "project"),
					huh.NewOption("Global (~/.aime/config.yaml)", "global"),
				).
				Value(&m.f.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("provider").
				Title("Oracle Provider").
				Options(huh.NewOptions(config.ValidProviders()...)...).
				Value(&m.f.provider),

			huh.NewInput().
				Key("model").
				Title("Model").
				Value(&m.f.model).
				Placeholder("gpt-4o-mini"),

			huh.NewInput().
				Key("baseURL").
				Title("Base URL").
				Value(&m.f.baseURL).
				Placeholder("http://localhost:8000/v1"),
		).Title("Oracle"),

		huh.NewGroup(
			huh.NewInput().
				Key("windowSize").
				Title("Window Size").
				Value(&m.f.windowSize).
				Validate(validateInt(1)),

			huh.NewInput().
				Key("scoreThreshold").
				Title("Score Threshold").
				Value(&m.f.scoreThreshold).
				Validate(validateThreshold),

			huh.NewInput().
				Key("maxIterations").
				Title("Max Iterations").
				Value(&m.f.maxIterations).
				Validate(validateInt(1)),
		).Title("Optimizer and Workflow"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// save applies the form to a copy of the config, validates and writes it.
func (m *SettingsPaneModel) save() error {
	next := *m.config
	next.Oracle.Provider = m.f.provider
	next.Oracle.Model = m.f.model
	next.Oracle.BaseURL = m.f.baseURL
	next.Optimizer.WindowSize, _ = strconv.Atoi(m.f.windowSize)
	next.Optimizer.ScoreThreshold, _ = strconv.ParseFloat(m.f.scoreThreshold, 64)
	next.Workflow.MaxIterations, _ = strconv.Atoi(m.f.maxIterations)

	if errs := next.Validate(); len(errs) > 0 {
		return errs
	}

	target := m.projectPath
	if m.f.saveTarget == "global" {
		target = m.globalPath
	}
	if err := config.Save(&next, target); err != nil {
		return err
	}
	*m.config = next
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving: %v", m.err)) + "\n\n" + m.form.View()
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings (applies to the next run)")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it resets the form.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	if v {
		m.loadFields()
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last submission was written.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
