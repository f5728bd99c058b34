package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/actor"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/tools"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // Config key path, e.g. "optimizer.window_size"
	Value   any
	Message string
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidProviders returns the supported oracle providers.
func ValidProviders() []string {
	return []string{"local", "openai", "command"}
}

// ValidLogLevels returns the supported log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the supported console log formats.
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns every failure.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Workflow.MaxIterations < 1 {
		add("workflow.max_iterations", c.Workflow.MaxIterations, "must be at least 1")
	}
	if c.Planner.MaxTasks < 0 {
		add("planner.max_tasks", c.Planner.MaxTasks, "must be 0 (unlimited) or positive")
	}

	if c.Optimizer.WindowSize < 1 {
		add("optimizer.window_size", c.Optimizer.WindowSize, "must be at least 1")
	}
	if c.Optimizer.ScoreThreshold < 0 || c.Optimizer.ScoreThreshold > 1 {
		add("optimizer.score_threshold", c.Optimizer.ScoreThreshold, "must be between 0 and 1")
	}

	o := c.Oracle
	if !slices.Contains(ValidProviders(), o.Provider) {
		add("oracle.provider", o.Provider, "must be one of "+strings.Join(ValidProviders(), ", "))
	}
	if o.Provider == "command" && o.Command == "" {
		add("oracle.command", o.Command, "is required for the command provider")
	}
	if o.Provider == "openai" && o.Model == "" {
		add("oracle.model", o.Model, "is required for the openai provider")
	}
	if o.TimeoutSeconds < 0 {
		add("oracle.timeout_seconds", o.TimeoutSeconds, "must not be negative")
	}
	if o.MaxRetries < 0 {
		add("oracle.max_retries", o.MaxRetries, "must not be negative")
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		add("oracle.temperature", o.Temperature, "must be between 0 and 2")
	}

	errs = append(errs, c.validateTools()...)

	if c.Store.Enabled && c.Store.Path == "" {
		add("store.path", c.Store.Path, "is required when the store is enabled")
	}
	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		add("logging.level", c.Logging.Level, "must be one of "+strings.Join(ValidLogLevels(), ", "))
	}
	if !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		add("logging.format", c.Logging.Format, "must be one of "+strings.Join(ValidLogFormats(), ", "))
	}

	return errs
}

// validateTools checks tool specs and that every dispatch rule resolves to an
// enabled tool.
func (c *Config) validateTools() ValidationErrors {
	var errs ValidationErrors
	types := tools.Types()
	names := make(map[string]bool, len(c.Tools.Enabled))

	for i, spec := range c.Tools.Enabled {
		field := fmt.Sprintf("tools.enabled[%d]", i)
		if !slices.Contains(types, spec.Type) {
			errs = append(errs, ValidationError{Field: field + ".type", Value: spec.Type,
				Message: "must be one of " + strings.Join(types, ", ")})
		}
		name := spec.Name
		if name == "" {
			name = spec.Type
		}
		if names[name] {
			errs = append(errs, ValidationError{Field: field + ".name", Value: name, Message: "duplicate tool name"})
		}
		names[name] = true
	}

	if err := actor.ValidateRules(c.Dispatch.Rules, func(name string) bool { return names[name] }); err != nil {
		errs = append(errs, ValidationError{Field: "dispatch.rules", Value: len(c.Dispatch.Rules), Message: err.Error()})
	}
	return errs
}
